// Package api provides the REST client for the venue platform.
//
// Only the endpoints the sync engine needs are implemented: the bulk
// order list used as the reconciliation fetch, and a single-order get.
// The CRUD surface of the platform (branches, menu items, categories,
// prebookings, settings) is not consumed here.
package api
