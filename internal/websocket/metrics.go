package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "search",
	Subsystem: "gateway",
	Name:      "frames_published_total",
	Help:      "Frames published by the gateway, by channel",
}, []string{"channel"})
