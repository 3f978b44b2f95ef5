package svc

import (
	"fmt"
	"os"

	"anchor-snapshot-sol/internal/config"
	"anchor-snapshot-sol/internal/logic/accountparser"
	"anchor-snapshot-sol/internal/logic/accountparser/meteora"
	"anchor-snapshot-sol/internal/logic/idl"
	"anchor-snapshot-sol/internal/logic/persist"
	"anchor-snapshot-sol/internal/logic/snapshot"
	"anchor-snapshot-sol/internal/metrics"
	"anchor-snapshot-sol/internal/pkg/logger"
	"anchor-snapshot-sol/internal/pkg/mq"
	"anchor-snapshot-sol/internal/service"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"
)

// ServiceContext 快照任务用到的全部资源
type ServiceContext struct {
	Config     *config.SnapshotConfig
	Schema     *idl.Schema
	Parser     *accountparser.Parser
	Aggregator *snapshot.Aggregator
	Source     *service.RpcAccountSource
	Stores     []persist.SnapshotStore
	Producer   *kafka.Producer // kafka_producer.brokers 为空时为 nil
	Metrics    *metrics.Metrics
}

// LoadSchema 读取并校验 IDL 文件
func LoadSchema(path string) (*idl.Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read idl: %w", err)
	}
	schema, err := idl.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("load idl %s: %w", path, err)
	}
	return schema, nil
}

// NewParser 注册专用解码器（Meteora Pool），再按配置追加通用布局解码的账户类型
func NewParser(c *config.SnapshotConfig, schema *idl.Schema) *accountparser.Parser {
	return accountparser.NewParser(schema,
		meteora.RegisterHandlers,
		accountparser.SchemaHandlers(c.DecodeConf.SchemaTypes...),
	)
}

// NewServiceContext 创建服务上下文。client 为 nil 时按配置连接 Solana RPC
func NewServiceContext(c *config.SnapshotConfig, client service.ChainClient) (*ServiceContext, error) {
	schema, err := LoadSchema(c.IdlPath)
	if err != nil {
		return nil, err
	}
	logger.Infof("[svc] idl loaded: %s, accounts=%v", c.IdlPath, schema.AccountNames())

	if client == nil {
		client, err = service.NewSolanaClient(c.RpcConf.Endpoint, c.RpcConf.Commitment)
		if err != nil {
			return nil, err
		}
	}

	ctx := &ServiceContext{
		Config:  c,
		Schema:  schema,
		Parser:  NewParser(c, schema),
		Source:  service.NewRpcAccountSource(c, client),
		Metrics: metrics.Init(),
	}
	ctx.Aggregator = snapshot.New(ctx.Parser, snapshot.Options{
		AllowTypes: c.DecodeConf.AllowTypes,
		Workers:    c.DecodeConf.Workers,
		Metrics:    ctx.Metrics,
	})
	logger.Infof("[svc] handled account types: %v", ctx.Parser.Handled())

	if err := ctx.initOutputs(); err != nil {
		ctx.Close()
		return nil, err
	}

	logger.Infof("[svc] 服务上下文初始化完成")
	return ctx, nil
}

func (ctx *ServiceContext) initOutputs() error {
	out := ctx.Config.OutputConf
	if out.JsonPath != "" {
		ctx.Stores = append(ctx.Stores, persist.NewFileSnapshotStore(out.JsonPath))
	}
	if out.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: out.RedisAddr, // eg: "127.0.0.1:6379"
		})
		ctx.Stores = append(ctx.Stores, persist.NewRedisSnapshotStore(rdb, out.RedisKey))
	}
	if out.SqlitePath != "" {
		store, err := persist.OpenSQLite(out.SqlitePath)
		if err != nil {
			logger.Errorf("[svc] SQLite 初始化失败: %v", err)
			return err
		}
		ctx.Stores = append(ctx.Stores, store)
	}

	if ctx.Config.KafkaProducerConf.Enabled() {
		producer, err := mq.NewKafkaProducer(ctx.Config.KafkaProducerConf.ToKafkaOption())
		if err != nil {
			logger.Errorf("[svc] Kafka producer 初始化失败: %v", err)
			return err
		}
		ctx.Producer = producer
	}
	return nil
}

// Close 关闭服务上下文中的资源
func (ctx *ServiceContext) Close() {
	for _, s := range ctx.Stores {
		if err := s.Close(); err != nil {
			logger.Warnf("[svc] close %s store: %v", s.Name(), err)
		}
	}
	if ctx.Producer != nil {
		ctx.Producer.Flush(5000)
		ctx.Producer.Close()
	}
}
