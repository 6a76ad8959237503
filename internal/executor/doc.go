// Package executor runs GraphQL operations against a lowered schema.
//
// Execution is breadth first. Fields whose schema.Field.Async flag is false
// are resolved inline through Runtime.ResolveSync and completed immediately.
// Async fields met at one depth are queued and handed to
// Runtime.BatchResolveAsync in a single call; their completions may queue
// the next depth. The loop ends when no async work is pending.
//
// Values are completed the usual way: lists element by element, leafs through
// Runtime.SerializeLeafValue, objects by recursing into the selection set and
// abstract types through Runtime.ResolveType. A null in a Non-Null position
// nullifies the nearest nullable ancestor; async tasks queued below a
// nullified path are dropped before their batch is sent.
//
// Errors are collected with their response path and never abort sibling
// fields. Operation selection and variable coercion failures stop execution
// before any resolver runs and yield a result without data.
//
// Mutations resolve their root fields one after another. Subscriptions are
// served by Executor.Subscribe when the runtime also implements
// SubscriptionRuntime: every event of the source stream re-executes the
// selection set with the event as the root field value.
//
// # Runtime contract
//
//   - ResolveSync is called once per sync field instance, in document order.
//   - BatchResolveAsync is called at most once per depth, with every task of
//     that depth. It must return one result per task in the same order.
//   - Sources and arguments are passed through unchanged; the executor never
//     inspects source values except to hand them back to the runtime.
package executor
