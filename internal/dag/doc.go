// Package dag holds the dependency graph behind the task registry. Nodes are
// task names; an edge from A to B means B depends on A. The graph keeps
// insertion order so that closures and cycle reports are reproducible between
// runs.
package dag
