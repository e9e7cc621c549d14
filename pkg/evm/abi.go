package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const erc20ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const spokePoolABIJSON = `[
	{"name":"depositV3","type":"function","stateMutability":"payable","inputs":[
		{"name":"depositor","type":"address"},
		{"name":"recipient","type":"address"},
		{"name":"inputToken","type":"address"},
		{"name":"outputToken","type":"address"},
		{"name":"inputAmount","type":"uint256"},
		{"name":"outputAmount","type":"uint256"},
		{"name":"destinationChainId","type":"uint256"},
		{"name":"exclusiveRelayer","type":"address"},
		{"name":"quoteTimestamp","type":"uint32"},
		{"name":"fillDeadline","type":"uint32"},
		{"name":"exclusivityDeadline","type":"uint32"},
		{"name":"message","type":"bytes"}],"outputs":[]},
	{"name":"V3FundsDeposited","type":"event","anonymous":false,"inputs":[
		{"name":"inputToken","type":"address","indexed":false},
		{"name":"outputToken","type":"address","indexed":false},
		{"name":"inputAmount","type":"uint256","indexed":false},
		{"name":"outputAmount","type":"uint256","indexed":false},
		{"name":"destinationChainId","type":"uint256","indexed":true},
		{"name":"depositId","type":"uint32","indexed":true},
		{"name":"quoteTimestamp","type":"uint32","indexed":false},
		{"name":"fillDeadline","type":"uint32","indexed":false},
		{"name":"exclusivityDeadline","type":"uint32","indexed":false},
		{"name":"depositor","type":"address","indexed":true},
		{"name":"recipient","type":"address","indexed":false},
		{"name":"exclusiveRelayer","type":"address","indexed":false},
		{"name":"message","type":"bytes","indexed":false}]},
	{"name":"FilledV3Relay","type":"event","anonymous":false,"inputs":[
		{"name":"inputToken","type":"address","indexed":false},
		{"name":"outputToken","type":"address","indexed":false},
		{"name":"inputAmount","type":"uint256","indexed":false},
		{"name":"outputAmount","type":"uint256","indexed":false},
		{"name":"repaymentChainId","type":"uint256","indexed":false},
		{"name":"originChainId","type":"uint256","indexed":true},
		{"name":"depositId","type":"uint32","indexed":true},
		{"name":"fillDeadline","type":"uint32","indexed":false},
		{"name":"exclusivityDeadline","type":"uint32","indexed":false},
		{"name":"exclusiveRelayer","type":"address","indexed":false},
		{"name":"relayer","type":"address","indexed":true},
		{"name":"depositor","type":"address","indexed":false},
		{"name":"recipient","type":"address","indexed":false},
		{"name":"message","type":"bytes","indexed":false},
		{"name":"relayExecutionInfo","type":"tuple","indexed":false,"components":[
			{"name":"updatedRecipient","type":"address"},
			{"name":"updatedMessage","type":"bytes"},
			{"name":"updatedOutputAmount","type":"uint256"},
			{"name":"fillType","type":"uint8"}]}]}
]`

const safeABIJSON = `[
	{"name":"setup","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"_owners","type":"address[]"},
		{"name":"_threshold","type":"uint256"},
		{"name":"to","type":"address"},
		{"name":"data","type":"bytes"},
		{"name":"fallbackHandler","type":"address"},
		{"name":"paymentToken","type":"address"},
		{"name":"payment","type":"uint256"},
		{"name":"paymentReceiver","type":"address"}],"outputs":[]},
	{"name":"execTransaction","type":"function","stateMutability":"payable","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"signatures","type":"bytes"}],"outputs":[{"name":"success","type":"bool"}]},
	{"name":"nonce","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getTransactionHash","type":"function","stateMutability":"view","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"_nonce","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]}
]`

const proxyFactoryABIJSON = `[
	{"name":"createProxyWithNonce","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"_singleton","type":"address"},
		{"name":"initializer","type":"bytes"},
		{"name":"saltNonce","type":"uint256"}],"outputs":[{"name":"proxy","type":"address"}]},
	{"name":"proxyCreationCode","type":"function","stateMutability":"pure","inputs":[],"outputs":[{"name":"","type":"bytes"}]}
]`

const multiSendABIJSON = `[
	{"name":"multiSend","type":"function","stateMutability":"payable","inputs":[{"name":"transactions","type":"bytes"}],"outputs":[]}
]`

var (
	erc20ABI        abi.ABI
	spokePoolABI    abi.ABI
	safeABI         abi.ABI
	proxyFactoryABI abi.ABI
	multiSendABI    abi.ABI

	// FilledV3RelayTopic is the topic0 for Across fill events
	FilledV3RelayTopic common.Hash
	// V3FundsDepositedTopic is the topic0 for Across deposit events
	V3FundsDepositedTopic common.Hash
)

func init() {
	var err error
	if erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON)); err != nil {
		panic(err)
	}
	if spokePoolABI, err = abi.JSON(strings.NewReader(spokePoolABIJSON)); err != nil {
		panic(err)
	}
	if safeABI, err = abi.JSON(strings.NewReader(safeABIJSON)); err != nil {
		panic(err)
	}
	if proxyFactoryABI, err = abi.JSON(strings.NewReader(proxyFactoryABIJSON)); err != nil {
		panic(err)
	}
	if multiSendABI, err = abi.JSON(strings.NewReader(multiSendABIJSON)); err != nil {
		panic(err)
	}
	FilledV3RelayTopic = spokePoolABI.Events["FilledV3Relay"].ID
	V3FundsDepositedTopic = spokePoolABI.Events["V3FundsDeposited"].ID
}

// PackERC20Transfer encodes an ERC-20 transfer call.
func PackERC20Transfer(to common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, amount)
}

// PackERC20Approve encodes an ERC-20 approve call.
func PackERC20Approve(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// DepositV3Params holds the arguments for an Across depositV3 call.
type DepositV3Params struct {
	Depositor           common.Address
	Recipient           common.Address
	InputToken          common.Address
	OutputToken         common.Address
	InputAmount         *big.Int
	OutputAmount        *big.Int
	DestinationChainID  *big.Int
	ExclusiveRelayer    common.Address
	QuoteTimestamp      uint32
	FillDeadline        uint32
	ExclusivityDeadline uint32
	Message             []byte
}

// PackDepositV3 encodes an Across depositV3 call.
func PackDepositV3(p DepositV3Params) ([]byte, error) {
	return spokePoolABI.Pack("depositV3",
		p.Depositor, p.Recipient,
		p.InputToken, p.OutputToken,
		p.InputAmount, p.OutputAmount,
		p.DestinationChainID, p.ExclusiveRelayer,
		p.QuoteTimestamp, p.FillDeadline, p.ExclusivityDeadline,
		p.Message,
	)
}

// PackSafeSetup encodes a Safe setup call used as the proxy initializer.
func PackSafeSetup(owners []common.Address, threshold *big.Int, fallbackHandler common.Address) ([]byte, error) {
	return safeABI.Pack("setup",
		owners, threshold,
		common.Address{}, []byte{},
		fallbackHandler,
		common.Address{}, big.NewInt(0), common.Address{},
	)
}

// PackCreateProxyWithNonce encodes a proxy factory deployment call.
func PackCreateProxyWithNonce(singleton common.Address, initializer []byte, saltNonce *big.Int) ([]byte, error) {
	return proxyFactoryABI.Pack("createProxyWithNonce", singleton, initializer, saltNonce)
}

// PackMultiSend encodes a MultiSend call wrapping pre-encoded transactions.
func PackMultiSend(transactions []byte) ([]byte, error) {
	return multiSendABI.Pack("multiSend", transactions)
}

// SafeTx describes one Safe transaction for execTransaction.
type SafeTx struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation uint8 // 0 = call, 1 = delegatecall
}

// PackExecTransaction encodes a Safe execTransaction call with the given signatures.
func PackExecTransaction(tx SafeTx, signatures []byte) ([]byte, error) {
	return safeABI.Pack("execTransaction",
		tx.To, tx.Value, tx.Data, tx.Operation,
		big.NewInt(0), big.NewInt(0), big.NewInt(0),
		common.Address{}, common.Address{},
		signatures,
	)
}

// FillEvent is a decoded FilledV3Relay log.
type FillEvent struct {
	OriginChainID *big.Int
	DepositID     uint32
	Relayer       common.Address
	Recipient     common.Address
	OutputAmount  *big.Int
	TxHash        common.Hash
	BlockNumber   uint64
}

// ParseFillEvent decodes a FilledV3Relay log. The log's topic0 must match
// FilledV3RelayTopic.
func ParseFillEvent(log types.Log) (*FillEvent, error) {
	if len(log.Topics) != 4 || log.Topics[0] != FilledV3RelayTopic {
		return nil, fmt.Errorf("not a FilledV3Relay log")
	}

	values, err := spokePoolABI.Events["FilledV3Relay"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack fill event: %w", err)
	}
	if len(values) < 10 {
		return nil, fmt.Errorf("unexpected fill event field count %d", len(values))
	}

	outputAmount, ok := values[3].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected outputAmount type")
	}
	recipient, ok := values[8].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected recipient type")
	}

	return &FillEvent{
		OriginChainID: new(big.Int).SetBytes(log.Topics[1].Bytes()),
		DepositID:     uint32(new(big.Int).SetBytes(log.Topics[2].Bytes()).Uint64()),
		Relayer:       common.BytesToAddress(log.Topics[3].Bytes()),
		Recipient:     recipient,
		OutputAmount:  outputAmount,
		TxHash:        log.TxHash,
		BlockNumber:   log.BlockNumber,
	}, nil
}

// DepositEvent is a decoded V3FundsDeposited log.
type DepositEvent struct {
	DestinationChainID *big.Int
	DepositID          uint32
	Depositor          common.Address
	TxHash             common.Hash
	BlockNumber        uint64
}

// ParseDepositEvent decodes a V3FundsDeposited log from a deposit receipt.
func ParseDepositEvent(log types.Log) (*DepositEvent, error) {
	if len(log.Topics) != 4 || log.Topics[0] != V3FundsDepositedTopic {
		return nil, fmt.Errorf("not a V3FundsDeposited log")
	}
	return &DepositEvent{
		DestinationChainID: new(big.Int).SetBytes(log.Topics[1].Bytes()),
		DepositID:          uint32(new(big.Int).SetBytes(log.Topics[2].Bytes()).Uint64()),
		Depositor:          common.BytesToAddress(log.Topics[3].Bytes()),
		TxHash:             log.TxHash,
		BlockNumber:        log.BlockNumber,
	}, nil
}

// UnpackBalanceOf decodes the result of an ERC-20 balanceOf call.
func UnpackBalanceOf(data []byte) (*big.Int, error) {
	values, err := erc20ABI.Unpack("balanceOf", data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type")
	}
	return balance, nil
}

// PackBalanceOf encodes an ERC-20 balanceOf call.
func PackBalanceOf(account common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", account)
}

// EncodeMultiSendTx encodes one transaction in MultiSend packed format:
// operation (1) || to (20) || value (32) || data length (32) || data.
func EncodeMultiSendTx(tx SafeTx) []byte {
	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	buf := make([]byte, 0, 85+len(tx.Data))
	buf = append(buf, tx.Operation)
	buf = append(buf, tx.To.Bytes()...)
	buf = append(buf, common.LeftPadBytes(value.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(int64(len(tx.Data))).Bytes(), 32)...)
	buf = append(buf, tx.Data...)
	return buf
}

// PredictProxyAddress computes the CREATE2 address a proxy factory will
// deploy to for the given initializer and salt nonce.
//
// The factory derives salt = keccak256(keccak256(initializer) || saltNonce)
// and init code = proxyCreationCode || abi.encode(singleton).
func PredictProxyAddress(factory, singleton common.Address, proxyCreationCode, initializer []byte, saltNonce *big.Int) common.Address {
	initializerHash := crypto.Keccak256(initializer)
	salt := crypto.Keccak256(initializerHash, common.LeftPadBytes(saltNonce.Bytes(), 32))

	initCode := make([]byte, 0, len(proxyCreationCode)+32)
	initCode = append(initCode, proxyCreationCode...)
	initCode = append(initCode, common.LeftPadBytes(singleton.Bytes(), 32)...)

	var salt32 [32]byte
	copy(salt32[:], salt)
	return crypto.CreateAddress2(factory, salt32, crypto.Keccak256(initCode))
}
