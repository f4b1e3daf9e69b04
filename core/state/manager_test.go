package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lendcore/native/comptroller"
	"lendcore/storage"
)

func TestManagerRevertRestoresEarlierWrites(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	require.NoError(t, mgr.KVPut([]byte("a"), uint64(1)))
	outer := mgr.Snapshot()
	require.NoError(t, mgr.KVPut([]byte("a"), uint64(2)))
	require.NoError(t, mgr.KVPut([]byte("b"), uint64(3)))
	inner := mgr.Snapshot()
	require.NoError(t, mgr.KVDelete([]byte("a")))

	var value uint64
	ok, err := mgr.KVGet([]byte("a"), &value)
	require.NoError(t, err)
	require.False(t, ok)

	mgr.RevertToSnapshot(inner)
	ok, err = mgr.KVGet([]byte("a"), &value)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), value)

	mgr.RevertToSnapshot(outer)
	ok, err = mgr.KVGet([]byte("a"), &value)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), value)
	ok, err = mgr.KVGet([]byte("b"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManagerCommitWritesThrough(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	require.NoError(t, mgr.KVPut([]byte("kept"), uint64(7)))
	require.NoError(t, mgr.KVPut([]byte("dropped"), uint64(8)))
	require.NoError(t, mgr.KVDelete([]byte("dropped")))
	require.Equal(t, 2, mgr.Pending())
	require.NoError(t, mgr.Commit())
	require.Zero(t, mgr.Pending())

	has, err := db.Has(kvKey([]byte("kept")))
	require.NoError(t, err)
	require.True(t, has)
	has, err = db.Has(kvKey([]byte("dropped")))
	require.NoError(t, err)
	require.False(t, has)

	fresh := NewManager(db)
	var value uint64
	ok, err := fresh.KVGet([]byte("kept"), &value)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), value)

	require.NoError(t, fresh.KVPut([]byte("kept"), uint64(9)))
	fresh.Discard()
	ok, err = fresh.KVGet([]byte("kept"), &value)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), value)
}

func TestKVAppendDeduplicates(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	key := []byte("list")
	require.NoError(t, mgr.KVAppend(key, []byte{0x01}))
	require.NoError(t, mgr.KVAppend(key, []byte{0x02}))
	require.NoError(t, mgr.KVAppend(key, []byte{0x01}))

	var list [][]byte
	require.NoError(t, mgr.KVGetList(key, &list))
	require.Equal(t, [][]byte{{0x01}, {0x02}}, list)

	var empty [][]byte
	require.NoError(t, mgr.KVGetList([]byte("missing"), &empty))
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestComptrollerStateRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	admin := common.HexToAddress("0x00000000000000000000000000000000000000ad")
	market := common.HexToAddress("0x000000000000000000000000000000000000000a")
	account := common.HexToAddress("0x0000000000000000000000000000000000000050")

	params, err := mgr.ComptrollerParams()
	require.NoError(t, err)
	require.Nil(t, params)

	require.NoError(t, mgr.ComptrollerPutParams(&comptroller.Params{
		Admin:          admin,
		CloseFactor:    uint256.NewInt(5e17),
		MaxAssets:      4,
		TransferPaused: true,
	}))
	params, err = mgr.ComptrollerParams()
	require.NoError(t, err)
	require.Equal(t, admin, params.Admin)
	require.Equal(t, uint64(5e17), params.CloseFactor.Uint64())
	require.True(t, params.LiquidationIncentive.IsZero())
	require.True(t, params.TransferPaused)

	require.NoError(t, mgr.ComptrollerPutAccountAssets(account, []common.Address{market}))
	require.NoError(t, mgr.ComptrollerPutMembership(market, account, 1))
	assets, err := mgr.ComptrollerAccountAssets(account)
	require.NoError(t, err)
	require.Equal(t, []common.Address{market}, assets)

	require.NoError(t, mgr.ComptrollerPutAccountAssets(account, nil))
	require.NoError(t, mgr.ComptrollerPutMembership(market, account, 0))
	assets, err = mgr.ComptrollerAccountAssets(account)
	require.NoError(t, err)
	require.Empty(t, assets)
	position, err := mgr.ComptrollerMembership(market, account)
	require.NoError(t, err)
	require.Zero(t, position)

	index := new(uint256.Int).Mul(comptroller.InitialIndex, uint256.NewInt(3))
	require.NoError(t, mgr.ComptrollerPutRewardState(comptroller.RewardNative, comptroller.SideBorrow, market, &comptroller.RewardMarketState{Index: index, Timestamp: 77}))
	st, err := mgr.ComptrollerRewardState(comptroller.RewardNative, comptroller.SideBorrow, market)
	require.NoError(t, err)
	require.True(t, st.Index.Eq(index))
	require.Equal(t, uint32(77), st.Timestamp)

	other, err := mgr.ComptrollerRewardState(comptroller.RewardGovernance, comptroller.SideBorrow, market)
	require.NoError(t, err)
	require.Nil(t, other)
}
