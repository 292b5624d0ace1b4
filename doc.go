// doc.go
//
// Package overview.
//
// Context
// -------
// Package recordset is an active-record data layer: load a row into a
// Record, mutate it through Set, and Save writes exactly the dirty
// columns back.  Table names, column names, and operators all pass a
// strict whitelist before they are spliced into SQL; values always ride
// as bound parameters.  Schema metadata is introspected once per
// (connection, table) pair and drives value validation before any write
// statement is issued.
//
// A minimal session:
//
//	db, err := recordset.Open("")
//	users, err := db.Table("users")
//	u, err := users.Load(ctx, 7)
//	err = u.Set(ctx, "email", "ops@example.com")
//	err = u.Save(ctx)
//
// Connections come from connections.ini (or .yaml), programmatic
// Registry().Add calls, or the RECORDSET_* env fallback.  Transactions
// are scoped per connection name through db.Tx(); statements issued
// while one is live route through its dedicated connection.
//
// Notes
// -----
// • *DB, *Table, *Registry, and *TxManager are safe for concurrent use.
//   A *Record is not; confine each instance to one goroutine.
// • Oxford commas, two spaces after periods.
package recordset
