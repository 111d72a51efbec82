/*
Package dom hosts a replayed page in process.

It wraps golang.org/x/net/html trees with a small DOM surface (attributes,
inline style, child list edits, frame content documents) and a mutation
observer modelled on the browser's MutationObserver: every edit queues
records on the matching observers, and the host delivers them in batches by
calling Document.Flush, the way a browser drains its microtask queue after a
script turn.

Documents attached as frame content share the loop of their parent, so a
single Flush on the top document drains every frame.

Node lookup uses htmlquery (XPath) and goquery (CSS selectors); inline style
declarations are parsed with douceur.
*/
package dom
