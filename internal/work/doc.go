// Package work implements the per-rank Work Executor (C6) and the
// Supervisor Loop (C7). ActiveWork drives one Distribution through the
// NEW->JOINED->PRE_RUNNING->RUNNING->STOPPING->RETIRED state machine
// under collective barriers scoped to that distribution's subgroup;
// Supervisor polls a set of ActiveWork entries until every one of them
// has retired.
package work
