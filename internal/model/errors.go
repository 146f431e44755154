package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is matching; every typed error below unwraps to one.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInfeasibleInstance = errors.New("infeasible instance")
	ErrUnroutableNodes    = errors.New("unroutable nodes")
	ErrNoSolution         = errors.New("no solution found")
)

// InvalidInputError reports malformed or insufficient input data.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// InfeasibleInstanceError reports a node no vehicle can serve even alone.
type InfeasibleInstanceError struct {
	Node     int
	Demand   int
	Capacity int
}

func (e *InfeasibleInstanceError) Error() string {
	return fmt.Sprintf("infeasible instance: node %d demand %d exceeds vehicle capacity %d", e.Node, e.Demand, e.Capacity)
}

func (e *InfeasibleInstanceError) Unwrap() error { return ErrInfeasibleInstance }

// UnroutableNodesError accompanies a partial solution and lists the customers
// that could not be placed on any vehicle.
type UnroutableNodesError struct {
	Nodes []int
}

func (e *UnroutableNodesError) Error() string {
	ids := make([]string, len(e.Nodes))
	for i, n := range e.Nodes {
		ids[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("unroutable nodes: [%s]", strings.Join(ids, " "))
}

func (e *UnroutableNodesError) Unwrap() error { return ErrUnroutableNodes }

// NoSolutionError reports that no feasible assignment was produced at all.
type NoSolutionError struct {
	Reason string
}

func (e *NoSolutionError) Error() string {
	if e.Reason == "" {
		return "no solution found"
	}
	return "no solution found: " + e.Reason
}

func (e *NoSolutionError) Unwrap() error { return ErrNoSolution }
