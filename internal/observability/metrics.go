package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	messagesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_created_total",
			Help: "Total number of messages stored, by room and kind.",
		},
		[]string{"room", "kind"},
	)
	messagesDeduplicatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_deduplicated_total",
			Help: "Total number of create calls answered with an existing message.",
		},
	)
	reactionsToggledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_reactions_toggled_total",
			Help: "Total number of reaction toggles.",
		},
		[]string{"room"},
	)
	orphanRepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_orphan_replies_total",
			Help: "Replies whose target could not be resolved, by applied policy.",
		},
		[]string{"policy"},
	)
	broadcastDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_broadcast_dropped_total",
			Help: "Events dropped because a client send queue was full.",
		},
		[]string{"event"},
	)
	presenceOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_presence_online_users",
			Help: "Number of logged-in users on this instance.",
		},
	)
	heartbeatMissedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_heartbeat_missed_total",
			Help: "Connections observed without a recent heartbeat.",
		},
	)
	pushDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_push_dispatch_total",
			Help: "Push notification dispatches, by result.",
		},
		[]string{"result"},
	)
	relayErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_errors_total",
			Help: "Cross-instance relay publish or decode failures.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		messagesCreatedTotal,
		messagesDeduplicatedTotal,
		reactionsToggledTotal,
		orphanRepliesTotal,
		broadcastDroppedTotal,
		presenceOnline,
		heartbeatMissedTotal,
		pushDispatchTotal,
		relayErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncMessageCreated(room, kind string) {
	messagesCreatedTotal.WithLabelValues(room, kind).Inc()
}

func IncMessageDeduplicated() {
	messagesDeduplicatedTotal.Inc()
}

func IncReactionToggled(room string) {
	reactionsToggledTotal.WithLabelValues(room).Inc()
}

func IncOrphanReply(policy string) {
	orphanRepliesTotal.WithLabelValues(policy).Inc()
}

func IncBroadcastDropped(event string) {
	broadcastDroppedTotal.WithLabelValues(event).Inc()
}

func SetPresenceOnline(n int) {
	presenceOnline.Set(float64(n))
}

func IncHeartbeatMissed() {
	heartbeatMissedTotal.Inc()
}

func IncPushDispatch(result string) {
	pushDispatchTotal.WithLabelValues(result).Inc()
}

func IncRelayError() {
	relayErrorsTotal.Inc()
}
