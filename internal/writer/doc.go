// Package writer implements the batched price-history writer.
//
// Every price.changed event becomes one append-only row in the price_log
// table. Rows are batched and flushed on a timer or when the batch fills,
// whichever comes first. Prices are stored as integer cents.
package writer
