/*
Package condition implements the restricted boolean expression language used
for conditional edges and loop conditions.

Expressions are parsed into a small AST and interpreted directly against a
state snapshot. The language has no function calls (other than the
state.get lookup form), no assignment and no access to anything outside the
supplied state.

	value > 10
	count < 3 and not done
	state['quality_score'] >= 70 || state.get('retries', 0) == 0
	user.role == "admin"

A missing key evaluates to null, which compares as the zero value of the
other operand (0, "", false). An explicit default can be given with
state.get('key', default).
*/
package condition
