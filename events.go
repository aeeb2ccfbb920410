// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamics

import (
	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/geometry"
)

// CollisionEvent reports a contact between two colliders starting or
// stopping.
type CollisionEvent struct {
	Collider1 geometry.Handle
	Collider2 geometry.Handle
	Started   bool
}

// IntersectionEvent reports a sensor collider starting or stopping to
// overlap another collider.
type IntersectionEvent struct {
	Collider1    geometry.Handle
	Collider2    geometry.Handle
	Intersecting bool
}

// BodyEventKind tags a body lifecycle event.
type BodyEventKind uint8

const (
	// EventNaNReset is emitted when a body's state became non-finite
	// and was reset to its last valid snapshot.
	EventNaNReset = BodyEventKind(iota)
)

// BodyEvent reports a per-body recovery event.
type BodyEvent struct {
	Body body.Handle
	Kind BodyEventKind
}

// EventCollector gathers the events of one step and delivers them to
// buffered channels after the step completes, before Step returns.
// Events exceeding a channel's capacity are dropped.
type EventCollector struct {
	collisions    chan CollisionEvent
	intersections chan IntersectionEvent
	bodyEvents    chan BodyEvent

	pendingCollisions    []CollisionEvent
	pendingIntersections []IntersectionEvent
	pendingBody          []BodyEvent
}

// NewEventCollector creates and returns a pointer to a new
// EventCollector with the given channel capacity.
func NewEventCollector(capacity int) *EventCollector {

	if capacity < 1 {
		capacity = 256
	}
	return &EventCollector{
		collisions:    make(chan CollisionEvent, capacity),
		intersections: make(chan IntersectionEvent, capacity),
		bodyEvents:    make(chan BodyEvent, capacity),
	}
}

// Collisions returns the collision event channel.
func (ec *EventCollector) Collisions() <-chan CollisionEvent {

	return ec.collisions
}

// Intersections returns the intersection event channel.
func (ec *EventCollector) Intersections() <-chan IntersectionEvent {

	return ec.intersections
}

// BodyEvents returns the body event channel.
func (ec *EventCollector) BodyEvents() <-chan BodyEvent {

	return ec.bodyEvents
}

func (ec *EventCollector) pushCollision(ev CollisionEvent) {

	ec.pendingCollisions = append(ec.pendingCollisions, ev)
}

func (ec *EventCollector) pushIntersection(ev IntersectionEvent) {

	ec.pendingIntersections = append(ec.pendingIntersections, ev)
}

func (ec *EventCollector) pushBody(ev BodyEvent) {

	ec.pendingBody = append(ec.pendingBody, ev)
}

// flush delivers the pending events, dropping what does not fit.
func (ec *EventCollector) flush() {

	for _, ev := range ec.pendingCollisions {
		select {
		case ec.collisions <- ev:
		default:
		}
	}
	for _, ev := range ec.pendingIntersections {
		select {
		case ec.intersections <- ev:
		default:
		}
	}
	for _, ev := range ec.pendingBody {
		select {
		case ec.bodyEvents <- ev:
		default:
		}
	}
	ec.pendingCollisions = ec.pendingCollisions[:0]
	ec.pendingIntersections = ec.pendingIntersections[:0]
	ec.pendingBody = ec.pendingBody[:0]
}

// pairKey identifies an unordered collider pair.
type pairKey struct {
	a, b geometry.Handle
}

func makePairKey(a, b geometry.Handle) pairKey {

	if b.Index < a.Index || (b.Index == a.Index && b.Generation < a.Generation) {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// collisionMatrix tracks which collider pairs are touching, replacing
// the index-triangular matrix of a dense body array with a pair set
// keyed by generational handles.
type collisionMatrix struct {
	pairs map[pairKey]bool
}

func newCollisionMatrix() *collisionMatrix {

	return &collisionMatrix{pairs: make(map[pairKey]bool)}
}

func (cm *collisionMatrix) set(a, b geometry.Handle) {

	cm.pairs[makePairKey(a, b)] = true
}

func (cm *collisionMatrix) get(a, b geometry.Handle) bool {

	return cm.pairs[makePairKey(a, b)]
}

func (cm *collisionMatrix) reset() {

	for k := range cm.pairs {
		delete(cm.pairs, k)
	}
}
