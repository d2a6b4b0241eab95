// Package journal manages memory branches and the autosave lifecycle of
// memories under edit.
//
// Each open editor is represented by a Draft. Text edits apply to the
// draft synchronously; persisted writes are debounced so a burst of
// keystrokes produces one write. A draft over a new memory performs
// exactly one create, regardless of how many edits arrive before or
// while the create is in flight, and every subsequent save is an update
// against the id the create assigned. Text consisting only of markdown
// scaffolding never persists.
package journal
