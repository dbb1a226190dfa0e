// Package ir provides the value types stored in entity fields and carried
// by query filters.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types - entity fields are strings or int64
//   - Values are compared by type-tagged Key, so IRInt(1) != IRString("1")
//   - Canonical JSON (RFC 8785, NFC strings) is the only input to fingerprints
package ir
