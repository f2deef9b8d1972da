/*
Package runtime implements the flowline execution engine.

The Engine walks a validated domain.Graph for one domain.Run: it invokes
node tools, resolves simple, conditional and loop routing through a
ConditionEvaluator, appends an execution log entry per step and
checkpoints the run through an optional Recorder. Tool failures are
absorbed into the run state under domain.KeyError; structural failures end
the run as failed.
*/
package runtime
