// Package filetree lists and reorganizes the classified document tree.
//
// Every path is confined to the content root through pathguard. Mutations
// validate the whole request before touching the filesystem and never
// overwrite an existing entry. Deleting a document also removes its metadata
// sidecar (same relative path under the metadata root, .json extension) on a
// best-effort basis.
package filetree
