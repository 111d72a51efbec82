/*
Package patcher keeps the URL-bearing attributes of hosted documents
rewritten while page scripts mutate them.

PatchDocument arms one watcher per document. The watcher observes the
whole tree for insertions and for changes to WatchedAttributes; inserted
elements are walked with PatchElement, changed attributes go through
PatchAttribute. Writes happen only when the rewritten value differs, and the
rewrite is idempotent, so the records produced by the patcher's own writes
settle after one extra delivery round.

Frame elements that carry a content document get a watcher of their own.
*/
package patcher
