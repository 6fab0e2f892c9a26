// Package wire defines the gRPC contract between the field client and the
// collaboration server.
//
// Messages travel as google.protobuf.Struct values. The typed request and
// response structs in this package are converted to and from Struct through
// their JSON form (Encode, Decode), so both sides share one set of Go types
// without generated stubs.
package wire
