// Package entity defines the records held by a Store and the schema
// descriptors that say which of their fields are typed and indexed.
//
// Entities are immutable value objects. Constructors validate nothing;
// Schema.Check only verifies that each field holds a value of its
// declared type.
package entity
