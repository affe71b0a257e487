// Package grading holds the pure rules of the results engine: period lifecycle transitions,
// the assessment weight budget, weighted score aggregation, grade-band resolution and ranking.
// Nothing here touches storage; callers load records and persist outcomes.
package grading
