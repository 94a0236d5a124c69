package models

import (
	"container/heap"
	"sync"
	"time"
)

const (
	EventSensor1Edge = "Sensor1Edge"
	EventSensor2Edge = "Sensor2Edge"
)

// Event is a scheduled sensor edge, offset from the start of a traffic run
type Event struct {
	At        time.Duration
	Type      string
	VehicleID string
	// Final marks the last edge a vehicle produces
	Final bool

	seq uint64
}

// EventQueue is a priority queue of events ordered by offset, then by
// insertion order for events sharing an offset
type EventQueue struct {
	events []*Event
	next   uint64
	mutex  sync.Mutex
}

// eventHeap implements heap.Interface and holds Events
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].At == h[j].At {
		return h[i].seq < h[j].seq
	}
	return h[i].At < h[j].At
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// NewEventQueue creates a new EventQueue
func NewEventQueue() *EventQueue {
	return &EventQueue{events: make([]*Event, 0)}
}

// Enqueue adds an event to the queue
func (eq *EventQueue) Enqueue(event *Event) {
	eq.mutex.Lock()
	defer eq.mutex.Unlock()
	event.seq = eq.next
	eq.next++
	heap.Push((*eventHeap)(&eq.events), event)
}

// Dequeue removes and returns the earliest event from the queue
func (eq *EventQueue) Dequeue() *Event {
	eq.mutex.Lock()
	defer eq.mutex.Unlock()
	if len(eq.events) == 0 {
		return nil
	}
	return heap.Pop((*eventHeap)(&eq.events)).(*Event)
}

// Peek returns the earliest event without removing it
func (eq *EventQueue) Peek() *Event {
	eq.mutex.Lock()
	defer eq.mutex.Unlock()
	if len(eq.events) == 0 {
		return nil
	}
	return eq.events[0]
}

// IsEmpty returns true if the queue is empty
func (eq *EventQueue) IsEmpty() bool {
	eq.mutex.Lock()
	defer eq.mutex.Unlock()
	return len(eq.events) == 0
}

// Len returns the number of events in the queue
func (eq *EventQueue) Len() int {
	eq.mutex.Lock()
	defer eq.mutex.Unlock()
	return len(eq.events)
}

// DequeueDue removes and returns, in order, every event scheduled at or
// before the given offset
func (eq *EventQueue) DequeueDue(upTo time.Duration) []*Event {
	eq.mutex.Lock()
	defer eq.mutex.Unlock()

	var due []*Event
	for len(eq.events) > 0 && eq.events[0].At <= upTo {
		due = append(due, heap.Pop((*eventHeap)(&eq.events)).(*Event))
	}
	return due
}
