/*
Package ledger records run progress in a ports.RunStore.

It serialises writes per run ID with reference-counted local mutexes, and
optionally with a ports.DistributedLocker when several replicas share one
store. The execution engine checkpoints runs through a Ledger after every
step.
*/
package ledger
