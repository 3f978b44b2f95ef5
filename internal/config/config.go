package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"anchor-snapshot-sol/internal/pkg/logger"
	"anchor-snapshot-sol/internal/pkg/mq"
	"anchor-snapshot-sol/internal/pkg/types"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Format   string `yaml:"format"`   // 日志格式，支持 "console" 或 "json"
	LogDir   string `yaml:"log_dir"`  // 日志目录（可为相对路径或绝对路径）
	Level    string `yaml:"level"`    // 日志级别：debug / info / warn / error
	Compress bool   `yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// RpcConfig Solana RPC 节点配置
type RpcConfig struct {
	Endpoint   string `yaml:"endpoint"`    // RPC 地址，例如 https://solana-rpc.publicnode.com
	TimeoutSec int    `yaml:"timeout_sec"` // 单次拉取的超时时间（秒）
	Commitment string `yaml:"commitment"`  // processed / confirmed / finalized
}

// DecodeConfig 解码与汇总配置
type DecodeConfig struct {
	AllowTypes  []string `yaml:"allow_types"`  // 进入快照的账户类型，为空表示所有结构化解码成功的账户
	SchemaTypes []string `yaml:"schema_types"` // 使用 IDL 通用布局解码的账户类型
	Workers     int      `yaml:"workers"`      // 并发解码协程数，<=0 时使用 CPU 核数
}

// OutputConfig 快照输出，留空的目标不输出
type OutputConfig struct {
	JsonPath   string `yaml:"json_path"`   // JSON 文件路径
	RedisAddr  string `yaml:"redis_addr"`  // Redis 地址
	RedisKey   string `yaml:"redis_key"`   // Redis hash key
	SqlitePath string `yaml:"sqlite_path"` // SQLite 数据库文件
}

// KafkaProducerConfig 表示 Kafka 生产者相关配置，brokers 为空时不发送
type KafkaProducerConfig struct {
	Brokers       string `yaml:"brokers"`         // Kafka broker 地址，多个用英文逗号分隔
	BatchSize     int    `yaml:"batch_size"`      // 批处理大小（单位字节）
	LingerMs      int    `yaml:"linger_ms"`       // 批处理最大延迟（毫秒）
	Topic         string `yaml:"topic"`           // 快照记录的 Kafka topic
	Partitions    int    `yaml:"partitions"`      // topic 的分区数
	SendTimeoutMs int    `yaml:"send_timeout_ms"` // 单条消息等待 ack 的超时时间（毫秒）
}

func (c *KafkaProducerConfig) Enabled() bool {
	return c.Brokers != ""
}

func (c *KafkaProducerConfig) ToKafkaOption() mq.KafkaProducerOption {
	return mq.KafkaProducerOption{
		Brokers:   c.Brokers,
		BatchSize: c.BatchSize,
		LingerMs:  c.LingerMs,
		Topics: []mq.TopicOption{
			{Topic: c.Topic, Partitions: c.Partitions},
		},
	}
}

// SnapshotConfig 是主配置结构体，用于驱动快照任务
type SnapshotConfig struct {
	LogConf           LogConfig           `yaml:"logger"`         // 日志配置
	RpcConf           RpcConfig           `yaml:"rpc"`            // RPC 配置
	KafkaProducerConf KafkaProducerConfig `yaml:"kafka_producer"` // Kafka 生产者配置
	DecodeConf        DecodeConfig        `yaml:"decode"`         // 解码配置
	OutputConf        OutputConfig        `yaml:"output"`         // 输出配置

	ProgramID   string   `yaml:"program_id"`   // 扫描该 Program 拥有的全部账户
	Addresses   []string `yaml:"addresses"`    // program_id 为空时，只拉取这些账户
	IdlPath     string   `yaml:"idl_path"`     // Anchor IDL 文件路径
	MetricsAddr string   `yaml:"metrics_addr"` // Prometheus 监听地址，为空不启动
}

const (
	defaultTimeoutSec = 60
	defaultCommitment = "confirmed"
	defaultRedisKey   = "anchor:snapshot"
	defaultSendMs     = 5000
)

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load 读取配置文件：先加载同目录下的 .env，再替换 ${VAR}，最后解析 YAML、填充默认值并校验
func Load(path string) (*SnapshotConfig, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg SnapshotConfig
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := map[string]struct{}{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing[name] = struct{}{}
		return match
	})
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(names, ", "))
	}
	return out, nil
}

func (c *SnapshotConfig) applyDefaults() {
	if c.RpcConf.TimeoutSec <= 0 {
		c.RpcConf.TimeoutSec = defaultTimeoutSec
	}
	if c.RpcConf.Commitment == "" {
		c.RpcConf.Commitment = defaultCommitment
	}
	if c.OutputConf.RedisAddr != "" && c.OutputConf.RedisKey == "" {
		c.OutputConf.RedisKey = defaultRedisKey
	}
	if c.KafkaProducerConf.Enabled() {
		if c.KafkaProducerConf.Partitions <= 0 {
			c.KafkaProducerConf.Partitions = 1
		}
		if c.KafkaProducerConf.SendTimeoutMs <= 0 {
			c.KafkaProducerConf.SendTimeoutMs = defaultSendMs
		}
	}
}

// Validate 基本的配置检查
func (c *SnapshotConfig) Validate() error {
	if c.RpcConf.Endpoint == "" {
		return errors.New("rpc.endpoint is required")
	}
	switch c.RpcConf.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("rpc.commitment %q must be processed, confirmed or finalized", c.RpcConf.Commitment)
	}
	if c.IdlPath == "" {
		return errors.New("idl_path is required")
	}
	if c.ProgramID == "" && len(c.Addresses) == 0 {
		return errors.New("either program_id or addresses is required")
	}
	if c.ProgramID != "" {
		if _, err := types.TryPubkeyFromBase58(c.ProgramID); err != nil {
			return fmt.Errorf("program_id: %w", err)
		}
	}
	for i, addr := range c.Addresses {
		if _, err := types.TryPubkeyFromBase58(addr); err != nil {
			return fmt.Errorf("addresses[%d]: %w", i, err)
		}
	}
	if c.KafkaProducerConf.Enabled() && c.KafkaProducerConf.Topic == "" {
		return errors.New("kafka_producer.topic is required when brokers is set")
	}
	return nil
}
