// Package bootstrap builds the shared dependencies of the daan binaries from config.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vishesh2305/DAAN/internal/service/ledger"
	"github.com/vishesh2305/DAAN/internal/service/store"
	"github.com/vishesh2305/DAAN/pkg/cache"
	"github.com/vishesh2305/DAAN/pkg/config"
	"github.com/vishesh2305/DAAN/pkg/database"
	"github.com/vishesh2305/DAAN/pkg/logger"
)

// OpenDB connects to postgres, or to sqlite/libsql when db.driver is "sqlite".
func OpenDB(cfg config.DBConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		return database.ConnectSQLite(cfg.URL)
	case "postgres", "":
		return database.ConnectPostgres(database.PostgresDSN(cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port))
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}

// OpenStore wraps the gorm store with the campaign cache. L2 is skipped when rdb is nil.
func OpenStore(db *gorm.DB, rdb *redis.Client) store.Store {
	// L1: memory (TTL 10s), L2: redis
	var c cache.Cache = cache.NewMemoryCache(10*time.Second, time.Minute)
	if rdb != nil {
		c = cache.NewMultiLevelCache(c, cache.NewRedisCache(rdb))
	}
	return store.NewCachedStore(store.NewGormStore(db), c)
}

// OpenLedger returns the gateway selected by ledger.mode. The close func
// releases the RPC connection.
func OpenLedger(ctx context.Context, cfg config.LedgerConfig) (ledger.Gateway, func(), error) {
	if cfg.Mode != "eth" {
		logger.Warn("ledger running in memory mode; campaigns are not persisted on chain")
		return ledger.NewMemoryLedger(nil), func() {}, nil
	}

	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, nil, fmt.Errorf("ledger.contract_address %q is not an address", cfg.ContractAddress)
	}
	keys, err := ledger.LoadKeyRing(cfg.KeystorePath, cfg.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("load keystore: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := ethclient.DialContext(dialCtx, cfg.RpcUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", cfg.RpcUrl, err)
	}

	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		client.Close()
		return nil, nil, fmt.Errorf("rpc serves chain %s, configured %d", chainID, cfg.ChainID)
	}

	g, err := ledger.NewEthGateway(dialCtx, client, common.HexToAddress(cfg.ContractAddress), keys, ledger.EthOptions{
		ConfirmTimeout: cfg.ConfirmTimeout,
		ScanDepth:      cfg.ScanDepth,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Info("ledger ready", zap.String("rpc", cfg.RpcUrl), zap.Int64("chain_id", chainID.Int64()))
	return g, client.Close, nil
}
