package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dedupHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moderator_transcript_dedup_hits_total",
		Help: "Transcripts absorbed by the dedup window without a provider call.",
	})
	pipelineFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderator_pipeline_failures_total",
			Help: "Pipeline failures by kind (NETWORK, WRONG_SHAPE, NOT_A_SEQUENCE).",
		},
		[]string{"kind"},
	)
	promptTokensEstimate = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "moderator_prompt_tokens_estimate",
		Help:    "Estimated prompt token counts (tiktoken cl100k_base).",
		Buckets: prometheus.LinearBuckets(250, 250, 20),
	})
)
