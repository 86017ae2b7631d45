// Package permission provides the 4-bit capability value used by cmsauth
// authorization checks and the resource registry that names protected resources.
//
// # Bit layout
//
// A [Value] holds four capabilities. The binary form is written most significant
// bit first: delete, add, update, read. "1010" therefore grants delete and update.
// [New] keeps stored bits as they are; turning a write capability on with
// [Value.Set] also turns on read.
//
// The super-user sentinel ([SuperUser], -3) is not a bit pattern. A super-user
// value answers true to every capability and ignores mutation.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O.
//
// # What this package must NOT do
//
//   - Access the database, cookies, or the network.
//   - Import cmsauth, session, or csrf.
package permission
