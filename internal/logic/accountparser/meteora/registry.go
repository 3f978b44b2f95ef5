package meteora

import (
	"anchor-snapshot-sol/internal/logic/accountparser"
	"anchor-snapshot-sol/internal/pkg/types"
)

// ProgramID Meteora dynamic AMM Program
var ProgramID = types.PubkeyFromBase58("Eo7WjKq67rjJQSZxS6z3YkapzY3eMj6Xy8X5EQVn5UaB")

// RegisterHandlers 注册 Meteora dynamic AMM 的账户解析器：Pool 结构化解析，LockEscrow 只记录 discriminator
func RegisterHandlers(m map[string]accountparser.AccountDecoder) {
	m["Pool"] = decodePool
	m["LockEscrow"] = accountparser.DiscriminatorOnly
}
