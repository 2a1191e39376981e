// Package graph composes units into pipelines.
//
// Two composition shapes are provided. Pipe chains two units with
// compile-time type checking and streams through its last stage. Graph
// declares arbitrary fan-out/fan-in as named nodes and dependency
// edges over a shared typed State; the Engine executes it level by
// level, nodes within a level in parallel.
//
// AsUnit closes the loop: a whole graph becomes a unit again, so
// pipelines nest inside pipelines and take middleware like any other
// unit.
//
// Pipelines can also be defined as YAML data (PipelineDef) and resolved
// against a node Registry, with recursive includes for composition.
package graph
