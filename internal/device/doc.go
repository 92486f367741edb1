// Package device holds the vocabulary shared by every layer of the BLE
// central engine:
//   - the error taxonomy (connection state errors and not-found errors)
//   - UUID normalization between short, normalized and canonical forms
//   - well-known service and characteristic UUIDs
//   - company identifiers in manufacturer advertisement data
//   - dedicated decoders for well-known characteristics
package device
