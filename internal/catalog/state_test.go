package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateApply(t *testing.T) {
	for _, tc := range []struct {
		name  string
		start State
		ev    Event
		want  State
	}{
		{
			name:  "started begins download",
			start: NewState(),
			ev:    Event{Kind: EventStarted},
			want:  State{Phase: PhaseDownloading, Progress: 0},
		},
		{
			name:  "download progress",
			start: State{Phase: PhaseDownloading, Progress: 10},
			ev:    Event{Kind: EventDownloadProgress, Progress: 42},
			want:  State{Phase: PhaseDownloading, Progress: 42},
		},
		{
			name:  "repeated progress value",
			start: State{Phase: PhaseDownloading, Progress: 42},
			ev:    Event{Kind: EventDownloadProgress, Progress: 42},
			want:  State{Phase: PhaseDownloading, Progress: 42},
		},
		{
			name:  "finished downloading changes nothing",
			start: State{Phase: PhaseDownloading, Progress: 100},
			ev:    Event{Kind: EventFinishedDownloading},
			want:  State{Phase: PhaseDownloading, Progress: 100},
		},
		{
			name:  "extraction progress switches phase",
			start: State{Phase: PhaseDownloading, Progress: 100},
			ev:    Event{Kind: EventExtractionProgress, Progress: 5},
			want:  State{Phase: PhaseExtracting, Progress: 5},
		},
		{
			name:  "indeterminate extraction progress",
			start: State{Phase: PhaseDownloading, Progress: 100},
			ev:    Event{Kind: EventExtractionProgress, Progress: ProgressIndeterminate},
			want:  State{Phase: PhaseExtracting, Progress: ProgressIndeterminate},
		},
		{
			name:  "finished extracting changes nothing",
			start: State{Phase: PhaseExtracting, Progress: 100},
			ev:    Event{Kind: EventFinishedExtracting},
			want:  State{Phase: PhaseExtracting, Progress: 100},
		},
		{
			name:  "finished installing is terminal",
			start: State{Phase: PhaseExtracting, Progress: 100},
			ev:    Event{Kind: EventFinishedInstalling},
			want:  InstalledState(),
		},
		{
			name:  "error from download",
			start: State{Phase: PhaseDownloading, Progress: 61},
			ev:    Event{Kind: EventErrored, Err: errors.New("connection reset")},
			want:  State{Phase: PhaseErrored},
		},
		{
			name:  "error from extraction",
			start: State{Phase: PhaseExtracting, Progress: 3},
			ev:    Event{Kind: EventErrored, Err: errors.New("corrupt archive")},
			want:  State{Phase: PhaseErrored},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.start.Apply(tc.ev))
		})
	}
}

func TestStateApplyFullPipeline(t *testing.T) {
	s := NewState()
	for _, ev := range []Event{
		{Kind: EventStarted},
		{Kind: EventDownloadProgress, Progress: 50},
		{Kind: EventDownloadProgress, Progress: 100},
		{Kind: EventFinishedDownloading},
		{Kind: EventExtractionProgress, Progress: 40},
		{Kind: EventExtractionProgress, Progress: 100},
		{Kind: EventFinishedExtracting},
		{Kind: EventFinishedInstalling},
	} {
		s = s.Apply(ev)
	}
	require.Equal(t, InstalledState(), s)
}

func TestStateDeterminate(t *testing.T) {
	require.True(t, State{Phase: PhaseDownloading, Progress: 0}.Determinate())
	require.True(t, State{Phase: PhaseDownloading, Progress: 57}.Determinate())
	require.False(t, State{Phase: PhaseExtracting, Progress: ProgressIndeterminate}.Determinate())
}
