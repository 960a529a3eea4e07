package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DomainRequests はドメインサービスが処理したメッセージ数。
	DomainRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdp_domain_requests_total",
		Help: "Domain service messages processed, by message type and result.",
	}, []string{"message", "result"})

	// KeyReleases は鍵の開示要求の結果数。
	KeyReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdp_key_releases_total",
		Help: "Decryption key release decisions, by result.",
	}, []string{"result"})

	// ProtectOperations はクライアントの暗号化/復号の実行数。
	ProtectOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdp_protect_operations_total",
		Help: "Client encrypt and decrypt operations, by operation and result kind.",
	}, []string{"operation", "result"})
)
