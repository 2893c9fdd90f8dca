// Package model defines the entity types held in the local snapshot.
//
// Relational fields (customer, branch) are represented by Ref, an explicit
// tagged union over "bare identifier" and "expanded object". Push events
// usually carry bare identifiers to keep payloads small, while bulk fetches
// carry expanded objects; Ref makes the distinction visible to the merge
// engine instead of relying on the shape of the decoded JSON.
package model
