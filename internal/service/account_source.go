package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"anchor-snapshot-sol/internal/config"
	"anchor-snapshot-sol/internal/logic/snapshot"
	"anchor-snapshot-sol/internal/pkg/logger"
	"anchor-snapshot-sol/internal/pkg/types"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/rpc"
)

// ChainClient 拉取原始账户数据，便于测试替换
type ChainClient interface {
	ProgramAccounts(ctx context.Context, program string) ([]snapshot.RawAccount, error)
	MultipleAccounts(ctx context.Context, addresses []string) ([]snapshot.RawAccount, error)
}

type solanaClient struct {
	client     *client.Client
	commitment rpc.Commitment
}

func NewSolanaClient(endpoint, commitment string) (ChainClient, error) {
	c := client.NewClient(endpoint)
	if c == nil {
		return nil, errors.New("rpc client init failed")
	}
	return &solanaClient{client: c, commitment: rpc.Commitment(commitment)}, nil
}

func (s *solanaClient) ProgramAccounts(ctx context.Context, program string) ([]snapshot.RawAccount, error) {
	accounts, err := s.client.GetProgramAccountsWithConfig(ctx, program, client.GetProgramAccountsConfig{
		Commitment: s.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("GetProgramAccounts failed: %w", err)
	}

	out := make([]snapshot.RawAccount, 0, len(accounts))
	for _, acc := range accounts {
		pubkey, err := types.TryPubkeyFromBase58(acc.Pubkey)
		if err != nil {
			logger.Warnf("[AccountSource] invalid pubkey in rpc response: %s", acc.Pubkey)
			continue
		}
		out = append(out, snapshot.RawAccount{Pubkey: pubkey, Data: acc.Account.Data})
	}
	return out, nil
}

func (s *solanaClient) MultipleAccounts(ctx context.Context, addresses []string) ([]snapshot.RawAccount, error) {
	infos, err := s.client.GetMultipleAccounts(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("GetMultipleAccounts failed: %w", err)
	}
	if len(infos) != len(addresses) {
		return nil, fmt.Errorf("返回账户数与请求不一致: got=%d want=%d", len(infos), len(addresses))
	}

	out := make([]snapshot.RawAccount, 0, len(infos))
	for i, info := range infos {
		out = append(out, snapshot.RawAccount{
			Pubkey: types.PubkeyFromBase58(addresses[i]),
			Data:   info.Data,
		})
	}
	return out, nil
}

// RpcAccountSource 一次性拉取 program 下的全部账户，或指定地址列表
type RpcAccountSource struct {
	client    ChainClient
	program   string
	addresses []string
	timeout   time.Duration
}

func NewRpcAccountSource(cfg *config.SnapshotConfig, c ChainClient) *RpcAccountSource {
	return &RpcAccountSource{
		client:    c,
		program:   cfg.ProgramID,
		addresses: cfg.Addresses,
		timeout:   time.Duration(cfg.RpcConf.TimeoutSec) * time.Second,
	}
}

// maxAccountsPerRequest getMultipleAccounts 单次请求的地址上限
const maxAccountsPerRequest = 100

// Fetch 拉取账户，数据为空（不存在或已关闭）的账户会被跳过
func (s *RpcAccountSource) Fetch(ctx context.Context) (items []snapshot.RawAccount, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[AccountSource] fetch panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("fetch panic: %v", r)
		}
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	var raw []snapshot.RawAccount
	if s.program != "" {
		raw, err = s.client.ProgramAccounts(ctx, s.program)
		if err != nil {
			return nil, err
		}
		logger.Infof("[AccountSource] GetProgramAccounts 成功, program: %s, 账户数: %d, 耗时: %v", s.program, len(raw), time.Since(start))
	} else {
		for i := 0; i < len(s.addresses); i += maxAccountsPerRequest {
			end := min(i+maxAccountsPerRequest, len(s.addresses))
			batch, err := s.client.MultipleAccounts(ctx, s.addresses[i:end])
			if err != nil {
				return nil, err
			}
			raw = append(raw, batch...)
		}
		logger.Infof("[AccountSource] GetMultipleAccounts 成功, 账户数: %d, 耗时: %v", len(s.addresses), time.Since(start))
	}

	items = make([]snapshot.RawAccount, 0, len(raw))
	for _, acc := range raw {
		if len(acc.Data) == 0 {
			logger.Warnf("[AccountSource] 账户数据为空: %s", acc.Pubkey)
			continue
		}
		items = append(items, acc)
	}
	return items, nil
}
