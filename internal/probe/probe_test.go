package probe

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/sony/gobreaker"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/solana"
	"solana-slot-sniper/internal/solana/stub"
)

const (
	testMint    = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testCreator = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testATA     = "FGETo8T8wMcN2wCjav8VK6eh3dLk63evNDPxzLSJra8B"
)

func putOption(dst []byte, key string) {
	if key == "" {
		return
	}
	binary.LittleEndian.PutUint32(dst[0:4], 1)
	b, _ := base58.Decode(key)
	copy(dst[4:36], b)
}

func mintAccount(owner, authority, freeze string, initialized bool) *solana.AccountInfo {
	data := make([]byte, mintSize)
	putOption(data[0:36], authority)
	binary.LittleEndian.PutUint64(data[36:44], 1_000_000_000)
	data[44] = 6
	if initialized {
		data[45] = 1
	}
	putOption(data[46:82], freeze)
	return &solana.AccountInfo{Owner: owner, Data: base64.StdEncoding.EncodeToString(data)}
}

func tokenAccount(mint, owner string, state TokenAccountState) *solana.AccountInfo {
	data := make([]byte, tokenAccountSize)
	m, _ := base58.Decode(mint)
	o, _ := base58.Decode(owner)
	copy(data[0:32], m)
	copy(data[32:64], o)
	binary.LittleEndian.PutUint64(data[64:72], 500)
	data[108] = byte(state)
	return &solana.AccountInfo{Owner: solana.TokenProgramID, Data: base64.StdEncoding.EncodeToString(data)}
}

func tx(sig string, keys []string, logs ...string) solana.Transaction {
	return solana.Transaction{
		Signature: sig,
		Meta:      &solana.TransactionMeta{LogMessages: logs},
		Message:   &solana.TransactionMessage{AccountKeys: keys},
	}
}

func TestFindAssociatedTokenAddress(t *testing.T) {
	got, err := FindAssociatedTokenAddress(testCreator, testMint)
	if err != nil {
		t.Fatalf("FindAssociatedTokenAddress: %v", err)
	}
	if got != testATA {
		t.Errorf("ata = %s, want %s", got, testATA)
	}

	b, _ := base58.Decode(got)
	if onCurve(b) {
		t.Errorf("derived address must be off curve")
	}

	if _, err := FindAssociatedTokenAddress("not-a-key", testMint); err == nil {
		t.Error("expected error for invalid owner")
	}
}

func TestFindProgramAddress_Bump(t *testing.T) {
	owner, _ := base58.Decode(testCreator)
	program, _ := base58.Decode(solana.TokenProgramID)
	mint, _ := base58.Decode(testMint)
	addr, bump, err := FindProgramAddress([][]byte{owner, program, mint}, solana.AssociatedTokenProgramID)
	if err != nil {
		t.Fatal(err)
	}
	if addr != testATA || bump != 254 {
		t.Errorf("got %s bump %d, want %s bump 254", addr, bump, testATA)
	}
}

func TestDecodeMint(t *testing.T) {
	m, err := DecodeMint(mintAccount(solana.TokenProgramID, testCreator, "", true))
	if err != nil {
		t.Fatalf("DecodeMint: %v", err)
	}
	if m.MintAuthority != testCreator || m.FreezeAuthority != "" || m.Decimals != 6 || !m.Initialized {
		t.Errorf("unexpected mint: %+v", m)
	}
	if m.Supply != 1_000_000_000 {
		t.Errorf("supply = %d", m.Supply)
	}

	if _, err := DecodeMint(mintAccount(solana.JupiterV6ProgramID, "", "", true)); !errors.Is(err, ErrNotTokenAccount) {
		t.Errorf("expected ErrNotTokenAccount, got %v", err)
	}
	if _, err := ParseMint(make([]byte, 10)); err == nil {
		t.Error("expected error for short data")
	}
}

func TestDecodeTokenAccount(t *testing.T) {
	ta, err := DecodeTokenAccount(tokenAccount(testMint, testCreator, TokenAccountFrozen))
	if err != nil {
		t.Fatalf("DecodeTokenAccount: %v", err)
	}
	if ta.Mint != testMint || ta.Owner != testCreator || ta.Amount != 500 || ta.State != TokenAccountFrozen {
		t.Errorf("unexpected token account: %+v", ta)
	}
}

func TestProber_MintBits(t *testing.T) {
	tests := []struct {
		name    string
		mint    *solana.AccountInfo
		ata     *solana.AccountInfo
		creator string
		want    domain.Mask
	}{
		{"missing mint", nil, nil, "", 0},
		{"foreign owner", mintAccount(solana.JupiterV6ProgramID, "", "", true), nil, "", 0},
		{"uninitialized", mintAccount(solana.TokenProgramID, "", "", false), nil, "", 0},
		{
			"revoked authorities", mintAccount(solana.TokenProgramID, "", "", true), nil, "",
			domain.BitMintExists | domain.BitAuthorityOK | domain.BitTransferable,
		},
		{
			"freeze set, creator account live", mintAccount(solana.TokenProgramID, testCreator, testCreator, true),
			tokenAccount(testMint, testCreator, TokenAccountInitialized), testCreator,
			domain.BitMintExists | domain.BitTransferable,
		},
		{
			"freeze set, creator account frozen", mintAccount(solana.TokenProgramID, testCreator, testCreator, true),
			tokenAccount(testMint, testCreator, TokenAccountFrozen), testCreator,
			domain.BitMintExists,
		},
		{
			"freeze set, creator unknown", mintAccount(solana.TokenProgramID, "", testCreator, true),
			nil, "",
			domain.BitMintExists | domain.BitAuthorityOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := stub.NewRPCClient()
			if tt.mint != nil {
				rpc.AddAccount(testMint, tt.mint)
			}
			if tt.ata != nil {
				rpc.AddAccount(testATA, tt.ata)
			}
			res, err := NewProber(Options{RPC: rpc}).Probe(context.Background(), testMint, tt.creator)
			if err != nil {
				t.Fatalf("Probe: %v", err)
			}
			if res.Mask != tt.want {
				t.Errorf("mask = %s, want %s", res.Mask, tt.want)
			}
		})
	}
}

func TestProber_SlotSequence(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testMint, []solana.SignatureInfo{
		{Signature: "sig-b", Slot: 1001},
		{Signature: "sig-a", Slot: 1000},
	})
	rpc.AddBlock(&solana.Block{Slot: 999, Transactions: []solana.Transaction{
		tx("prep", []string{testCreator},
			"Program log: Instruction: CreateAccount",
			"Program log: Instruction: SetAuthority",
			"Program log: reserve pool vault"),
	}})
	rpc.AddBlock(&solana.Block{Slot: 1000, Transactions: []solana.Transaction{
		tx("sig-a", []string{testCreator, testMint, solana.RaydiumAMMV4ProgramID},
			"Program log: initialize_pool"),
	}})
	rpc.AddBlock(&solana.Block{Slot: 1001, Transactions: []solana.Transaction{
		tx("sig-b", []string{testMint}, "Program log: Instruction: Transfer"),
	}})

	res, err := NewProber(Options{RPC: rpc}).Probe(context.Background(), testMint, "")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.FirstSlot != 1000 {
		t.Errorf("first slot = %d, want the oldest signature slot", res.FirstSlot)
	}
	want := domain.BitPoolExists | domain.BitPoolInit | domain.BitSlotSequence
	if res.Mask != want {
		t.Errorf("mask = %s, want %s", res.Mask, want)
	}
	if res.Sequence == nil || res.Sequence.PrevSlot != 999 || res.Sequence.InitSlot != 1000 {
		t.Errorf("sequence = %+v", res.Sequence)
	}
	if res.Scanned != 3 || res.Skipped != 2*DefaultWindow+1-3 {
		t.Errorf("scanned=%d skipped=%d", res.Scanned, res.Skipped)
	}
	if got := rpc.Calls("getBlock"); got != 2*DefaultWindow+1 {
		t.Errorf("getBlock calls = %d", got)
	}
}

func TestDetectSequence_Order(t *testing.T) {
	scans := map[int64]slotScan{
		10: {slot: 10, poolInit: true},
		11: {slot: 11, createAuthPool: true},
	}
	if seq := detectSequence(scans, 5, 15); seq != nil {
		t.Errorf("init before create must not match, got %+v", seq)
	}
	scans[12] = slotScan{slot: 12, poolInit: true}
	if seq := detectSequence(scans, 5, 15); seq == nil || seq.InitSlot != 12 {
		t.Errorf("expected sequence 11->12, got %+v", seq)
	}
}

func TestGuardedRPC_BreakerOpens(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Err = errors.New("connection refused")
	g := NewGuardedRPC(rpc, GuardOptions{Name: "test", FailureThreshold: 2, OpenTimeout: time.Minute, RPS: 1000})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := g.GetSlot(ctx); err == nil {
			t.Fatal("expected transport error")
		}
	}
	if g.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", g.State())
	}
	if _, err := g.GetSlot(ctx); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if rpc.Calls("getSlot") != 2 {
		t.Errorf("open breaker must not reach the endpoint, calls = %d", rpc.Calls("getSlot"))
	}

	res, err := NewProber(Options{RPC: g}).Probe(ctx, testMint, "")
	if err != nil {
		t.Fatalf("open breaker should degrade, got %v", err)
	}
	if !res.Degraded || res.Mask != 0 {
		t.Errorf("expected degraded empty result, got %+v", res)
	}
}

func TestGuardedRPC_SkippedSlotsKeepBreakerClosed(t *testing.T) {
	rpc := stub.NewRPCClient()
	g := NewGuardedRPC(rpc, GuardOptions{FailureThreshold: 2, RPS: 1000})

	for slot := int64(1); slot <= 5; slot++ {
		if _, err := g.GetBlock(context.Background(), slot); err == nil {
			t.Fatal("expected skipped-slot error")
		}
	}
	if g.State() != gobreaker.StateClosed {
		t.Errorf("rpc errors must not trip the breaker, state = %s", g.State())
	}
}

func TestResult_LaunchState(t *testing.T) {
	res := Result{
		Mint:    testMint,
		Mask:    domain.BitPoolInit | domain.BitTransferable,
		Account: &Mint{FreezeAuthority: testCreator},
	}
	s := res.LaunchState()
	if !s.PoolInitialized || !s.Transferable || s.MintAuthority || !s.FreezeAuthority {
		t.Errorf("unexpected launch state: %+v", s)
	}
}
