// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	loads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfcore_replay_loads",
		Help: "Count of replays loaded, by container or compression.",
	}, []string{"format"})

	loadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfcore_replay_load_errors",
		Help: "Count of replays that could not be loaded.",
	})

	saves = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfcore_replay_saves",
		Help: "Count of replays saved, by format.",
	}, []string{"format"})

	saveErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfcore_replay_save_errors",
		Help: "Count of replays that could not be saved.",
	})

	recorderRecordingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfcore_recorder_recording",
		Help: "Count of active recorders with a session in progress.",
	})

	recorderErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfcore_recorder_errors",
		Help: "Count of general recorder errors encountered.",
	}, []string{"type"})

	recorderSessions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfcore_recorder_sessions",
		Help: "Count of recorded sessions written.",
	})

	playerPlayingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfcore_player_playing",
		Help: "Count of active players streaming a session.",
	})

	playerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfcore_player_error_count",
		Help: "Count of player errors encountered during playback.",
	})

	playerSentBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfcore_player_sent_bytes",
		Help: "Count of bytes sent by the player.",
	})

	playerSentMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfcore_player_sent_messages",
		Help: "Count of messages sent by the player, by request answered.",
	}, []string{"request"})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		// Load/Save
		loads,
		loadErrors,
		saves,
		saveErrors,

		// Recorder
		recorderRecordingGauge,
		recorderErrors,
		recorderSessions,

		// Player
		playerPlayingGauge,
		playerErrors,
		playerSentBytes,
		playerSentMessages,
	)
}
