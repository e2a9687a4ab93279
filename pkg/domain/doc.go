/*
Package domain contains the core domain models of the canopy engine.

It defines the conversation hierarchy (Root, Trees and Branches), the events
that drive it, the transitions that move a session between trees and the
actions executed when an element is activated. This package is kept pure and
free of I/O, persistence or scheduling concerns, following Hexagonal
Architecture principles.

# Key Entities

  - Element: a tagged variant over Root, Tree and Branch. Built once, linked
    with Link, and shared read-only by every session afterwards.
  - Trigger: the literal keys, callback tokens, commands and predicate that
    make an element match an Event.
  - Transition: BACK, JUMP or CALLER, declared on a terminal Branch.
  - Action: a unit of work run when an element is activated (outbound call,
    invoke, set, wait, keyboard, clear cache).
  - Value: an opaque typed producer (expression or Go function) resolved
    against the current Env.
  - Identity: the (participant, conversation) pair that names a session.
*/
package domain
