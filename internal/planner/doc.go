// Package planner implements the Distribution Planner: it maps the set
// of enabled services, together with the coordinator's NodeTable, to an
// ordered Plan. Distributions are emitted in dependency order (HDFS,
// then HBase, then MapReduce or YARN, then the client distributions) so
// that a later distribution's SharedParams only ever reference upstream
// distributions already present in the plan.
package planner
