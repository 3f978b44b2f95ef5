package meteora

import (
	"fmt"
	"strconv"

	"anchor-snapshot-sol/internal/logic/accountparser"
	"anchor-snapshot-sol/internal/logic/layout"
	"anchor-snapshot-sol/internal/pkg/types"

	"github.com/near/borsh-go"
)

// Pool 账户定长部分的字节数（ConstantProduct 曲线，不含 discriminator）
const (
	PoolMinSize      = 867
	poolTypeOffset   = 354
	curveTypeOffset  = 866
	stableCurveBytes = 50
)

type PoolFees struct {
	TradeFeeNumerator           uint64
	TradeFeeDenominator         uint64
	ProtocolTradeFeeNumerator   uint64
	ProtocolTradeFeeDenominator uint64
}

type Bootstrapping struct {
	ActivationPoint  uint64
	WhitelistedVault types.Pubkey
	PoolCreator      types.Pubkey
	ActivationType   uint8
}

type PartnerInfo struct {
	FeeNumerator     uint64
	PartnerAuthority types.Pubkey
	PendingFeeA      uint64
	PendingFeeB      uint64
}

type Padding struct {
	Padding0 [6]uint8
	Padding1 [21]uint64
	Padding2 [21]uint64
}

type TokenMultiplier struct {
	TokenAMultiplier uint64
	TokenBMultiplier uint64
	PrecisionFactor  uint8
}

type DepegType borsh.Enum

const (
	DepegNone DepegType = iota
	DepegMarinade
	DepegLido
	DepegSplStake
)

var depegTypeNames = []string{"None", "Marinade", "Lido", "SplStake"}

type Depeg struct {
	BaseVirtualPrice uint64
	BaseCacheUpdated uint64
	DepegType        DepegType
}

type PoolType struct {
	Enum           borsh.Enum `borsh_enum:"true"`
	Permissioned   struct{}
	Permissionless struct{}
}

var poolTypeNames = []string{"Permissioned", "Permissionless"}

type StableCurve struct {
	Amp                     uint64
	TokenMultiplier         TokenMultiplier
	Depeg                   Depeg
	LastAmpUpdatedTimestamp uint64
}

type CurveType struct {
	Enum            borsh.Enum `borsh_enum:"true"`
	ConstantProduct struct{}
	Stable          StableCurve
}

const (
	CurveConstantProduct borsh.Enum = iota
	CurveStable
)

// Pool Meteora dynamic AMM 的 Pool 账户，字段顺序与链上布局一致
type Pool struct {
	LpMint            types.Pubkey
	TokenAMint        types.Pubkey
	TokenBMint        types.Pubkey
	AVault            types.Pubkey
	BVault            types.Pubkey
	AVaultLp          types.Pubkey
	BVaultLp          types.Pubkey
	AVaultLpBump      uint8
	Enabled           bool
	ProtocolTokenAFee types.Pubkey
	ProtocolTokenBFee types.Pubkey
	FeeLastUpdatedAt  uint64
	Padding0          [24]uint8
	Fees              PoolFees
	PoolType          PoolType
	Stake             types.Pubkey
	TotalLockedLp     uint64
	Bootstrapping     Bootstrapping
	PartnerInfo       PartnerInfo
	Padding           Padding
	CurveType         CurveType
}

// PoolSnapshot 快照中 Pool 的输出字段。
// 枚举字段（pool_type、curve_type 及其内部的 depeg_type）与通用解码一致，统一写成 {"Variant": {...}}，
// 无字段变体为 {"Variant": {}}；u64 写成十进制字符串。
type PoolSnapshot struct {
	Enabled           bool        `json:"enabled"`
	LpMint            string      `json:"lp_mint"`
	TokenAMint        string      `json:"token_a_mint"`
	TokenBMint        string      `json:"token_b_mint"`
	AVault            string      `json:"a_vault"`
	BVault            string      `json:"b_vault"`
	AVaultLp          string      `json:"a_vault_lp"`
	BVaultLp          string      `json:"b_vault_lp"`
	AVaultLpBump      string      `json:"a_vault_lp_bump"`
	ProtocolTokenAFee string      `json:"protocol_token_a_fee"`
	ProtocolTokenBFee string      `json:"protocol_token_b_fee"`
	PoolType          interface{} `json:"pool_type"`
	CurveType         interface{} `json:"curve_type"`
	Stake             string      `json:"stake"`
	TotalLockedLp     string      `json:"total_locked_lp"`
}

// DecodePool 解析 Pool 账户数据（不含 discriminator）
func DecodePool(data []byte) (pool *Pool, err error) {
	if len(data) < PoolMinSize {
		return nil, &layout.DecodeError{
			Kind:   layout.ErrTruncated,
			Path:   "Pool",
			Offset: len(data),
			Msg:    fmt.Sprintf("need %d bytes, have %d", PoolMinSize, len(data)),
		}
	}
	// borsh-go 不校验简单枚举的取值范围，复杂枚举越界时只返回字符串错误，这里先行检查
	if tag := data[poolTypeOffset]; int(tag) >= len(poolTypeNames) {
		return nil, &layout.DecodeError{Kind: layout.ErrInvalidVariant, Path: "Pool.poolType", Offset: poolTypeOffset, Tag: int(tag)}
	}
	switch borsh.Enum(data[curveTypeOffset]) {
	case CurveConstantProduct:
	case CurveStable:
		if len(data) < PoolMinSize+stableCurveBytes {
			return nil, &layout.DecodeError{
				Kind:   layout.ErrTruncated,
				Path:   "Pool.curveType.Stable",
				Offset: len(data),
				Msg:    fmt.Sprintf("need %d bytes, have %d", PoolMinSize+stableCurveBytes, len(data)),
			}
		}
	default:
		return nil, &layout.DecodeError{
			Kind:   layout.ErrInvalidVariant,
			Path:   "Pool.curveType",
			Offset: curveTypeOffset,
			Tag:    int(data[curveTypeOffset]),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			pool = nil
			err = &layout.DecodeError{Kind: layout.ErrFieldMismatch, Path: "Pool", Msg: fmt.Sprintf("borsh panic: %v", r)}
		}
	}()

	var p Pool
	if err := borsh.Deserialize(&p, data); err != nil {
		return nil, &layout.DecodeError{Kind: layout.ErrFieldMismatch, Path: "Pool", Msg: err.Error()}
	}
	if p.CurveType.Enum == CurveStable {
		if t := p.CurveType.Stable.Depeg.DepegType; int(t) >= len(depegTypeNames) {
			return nil, &layout.DecodeError{
				Kind:   layout.ErrInvalidVariant,
				Path:   "Pool.curveType.Stable.depeg.depegType",
				Offset: PoolMinSize + 8 + 17 + 16,
				Tag:    int(t),
			}
		}
	}
	return &p, nil
}

// Snapshot 生成快照输出
func (p *Pool) Snapshot() *PoolSnapshot {
	return &PoolSnapshot{
		Enabled:           p.Enabled,
		LpMint:            p.LpMint.String(),
		TokenAMint:        p.TokenAMint.String(),
		TokenBMint:        p.TokenBMint.String(),
		AVault:            p.AVault.String(),
		BVault:            p.BVault.String(),
		AVaultLp:          p.AVaultLp.String(),
		BVaultLp:          p.BVaultLp.String(),
		AVaultLpBump:      strconv.FormatUint(uint64(p.AVaultLpBump), 10),
		ProtocolTokenAFee: p.ProtocolTokenAFee.String(),
		ProtocolTokenBFee: p.ProtocolTokenBFee.String(),
		PoolType:          map[string]interface{}{poolTypeNames[p.PoolType.Enum]: struct{}{}},
		CurveType:         p.curveTypeValue(),
		Stake:             p.Stake.String(),
		TotalLockedLp:     strconv.FormatUint(p.TotalLockedLp, 10),
	}
}

// curveTypeValue 与通用 IDL 解码保持同一种形状：u64 为十进制字符串，枚举为 {"Variant": {...}}
func (p *Pool) curveTypeValue() interface{} {
	if p.CurveType.Enum != CurveStable {
		return map[string]interface{}{"ConstantProduct": struct{}{}}
	}
	s := p.CurveType.Stable
	return map[string]interface{}{
		"Stable": map[string]interface{}{
			"amp": strconv.FormatUint(s.Amp, 10),
			"token_multiplier": map[string]interface{}{
				"token_a_multiplier": strconv.FormatUint(s.TokenMultiplier.TokenAMultiplier, 10),
				"token_b_multiplier": strconv.FormatUint(s.TokenMultiplier.TokenBMultiplier, 10),
				"precision_factor":   s.TokenMultiplier.PrecisionFactor,
			},
			"depeg": map[string]interface{}{
				"base_virtual_price": strconv.FormatUint(s.Depeg.BaseVirtualPrice, 10),
				"base_cache_updated": strconv.FormatUint(s.Depeg.BaseCacheUpdated, 10),
				"depeg_type":         map[string]interface{}{depegTypeNames[s.Depeg.DepegType]: struct{}{}},
			},
			"last_amp_updated_timestamp": strconv.FormatUint(s.LastAmpUpdatedTimestamp, 10),
		},
	}
}

func decodePool(_ *accountparser.DecodeContext, data []byte) (interface{}, error) {
	pool, err := DecodePool(data)
	if err != nil {
		return nil, err
	}
	return pool.Snapshot(), nil
}
