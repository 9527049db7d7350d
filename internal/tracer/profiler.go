package tracer

import (
	"context"
	"sync"
)

// Profile is the call tree collected by a profiler session. Stacks form a
// prefix tree: each stack is a frame on top of its parent stack.
type Profile struct {
	Meta    ProfileMeta     `json:"meta"`
	Frames  []ProfileFrame  `json:"frames"`
	Stacks  []ProfileStack  `json:"stacks"`
	Samples []ProfileSample `json:"samples"`
	Markers []ProfileMarker `json:"markers"`
}

type ProfileMeta struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Prefix    string  `json:"prefix,omitempty"`
}

type ProfileFrame struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type ProfileStack struct {
	Frame int `json:"frame"`
	// -1 for root stacks
	Parent int `json:"parent"`
}

type ProfileSample struct {
	// -1 when the call stack is empty
	Stack int     `json:"stack"`
	Time  float64 `json:"time"`
}

type ProfileMarker struct {
	Name  string  `json:"name"`
	Time  float64 `json:"time"`
	Stack int     `json:"stack"`
	Data  any     `json:"data,omitempty"`
}

type stackKey struct {
	frame, parent int
}

// ProfilerListener builds a Profile from enter and exit records. It needs
// matching exits, which is why the profiler strategy forces function returns.
type ProfilerListener struct {
	mu      sync.Mutex
	profile Profile
	stacks  map[stackKey]int
	// frame index in the session -> profile frame
	frames map[int]int
	// session frame indexes in arrival order
	sessionFrames frameTable
	// open stacks, innermost last
	current []int
	started bool
}

// NewProfilerListener creates an empty profiler listener
func NewProfilerListener(cfg ListenerConfig) *ProfilerListener {
	return &ProfilerListener{
		stacks: make(map[stackKey]int),
		frames: make(map[int]int),
	}
}

func (l *ProfilerListener) top() int {
	if len(l.current) == 0 {
		return -1
	}
	return l.current[len(l.current)-1]
}

func (l *ProfilerListener) frameFor(index int) int {
	if i, ok := l.frames[index]; ok {
		return i
	}
	f, _ := l.sessionFrames.lookup(index)
	l.profile.Frames = append(l.profile.Frames, ProfileFrame{
		Name:   displayName(f),
		URL:    f.URL,
		Line:   f.Line,
		Column: f.Column,
	})
	i := len(l.profile.Frames) - 1
	l.frames[index] = i
	return i
}

func (l *ProfilerListener) stackFor(frame, parent int) int {
	key := stackKey{frame: frame, parent: parent}
	if i, ok := l.stacks[key]; ok {
		return i
	}
	l.profile.Stacks = append(l.profile.Stacks, ProfileStack{Frame: frame, Parent: parent})
	i := len(l.profile.Stacks) - 1
	l.stacks[key] = i
	return i
}

func (l *ProfilerListener) observe(h Header) {
	if !l.started {
		l.started = true
		l.profile.Meta.StartTime = h.Timestamp
		l.profile.Meta.Prefix = h.Prefix
	}
	l.profile.Meta.EndTime = h.Timestamp
}

func (l *ProfilerListener) sample(t float64) {
	l.profile.Samples = append(l.profile.Samples, ProfileSample{Stack: l.top(), Time: t})
}

// Output implements Listener
func (l *ProfilerListener) Output(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch rec := r.(type) {
	case Frame:
		l.sessionFrames.add(rec)
	case FrameEnter:
		l.observe(rec.Header)
		stack := l.stackFor(l.frameFor(rec.FrameIndex), l.top())
		l.current = append(l.current, stack)
		l.sample(rec.Timestamp)
	case FrameExit:
		l.observe(rec.Header)
		if len(l.current) > 0 {
			l.current = l.current[:len(l.current)-1]
		}
		l.sample(rec.Timestamp)
	case DOMMutation:
		l.observe(rec.Header)
		l.profile.Markers = append(l.profile.Markers, ProfileMarker{
			Name:  "DOM Mutation",
			Time:  rec.Timestamp,
			Stack: l.top(),
			Data:  map[string]any{"type": rec.MutationType},
		})
	case Event:
		l.observe(rec.Header)
		l.profile.Markers = append(l.profile.Markers, ProfileMarker{
			Name:  "DOMEvent",
			Time:  rec.Timestamp,
			Stack: l.top(),
			Data:  map[string]any{"eventType": rec.EventName},
		})
	}
}

// Error implements Listener
func (l *ProfilerListener) Error(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.profile.Markers = append(l.profile.Markers, ProfileMarker{
		Name:  "TracerError",
		Time:  l.profile.Meta.EndTime,
		Stack: l.top(),
		Data:  map[string]any{"message": err.Error()},
	})
}

// Stop implements Listener and returns the collected *Profile
func (l *ProfilerListener) Stop(ctx context.Context) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.profile
	return &p, nil
}
