package loadbalance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-wsrpc/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: "ws://127.0.0.1:8001/ws", Weight: 10, Version: "1.0"},
	{Addr: "ws://127.0.0.1:8002/ws", Weight: 5, Version: "1.0"},
	{Addr: "ws://127.0.0.1:8003/ws", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// 连续取 3 次应该覆盖全部实例
	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		results[i] = inst.Addr
	}
	assert.ElementsMatch(t, []string{testInstances[0].Addr, testInstances[1].Addr, testInstances[2].Addr}, results)

	// 第 4 次回到第一个
	inst, err := b.Pick(testInstances)
	require.NoError(t, err)
	assert.Equal(t, results[0], inst.Addr)
}

func TestEmptyInstances(t *testing.T) {
	balancers := []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer("k")}
	for _, b := range balancers {
		t.Run(b.Name(), func(t *testing.T) {
			_, err := b.Pick(nil)
			assert.ErrorIs(t, err, registry.ErrNoInstances)
		})
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		counts[inst.Addr]++
	}

	// 权重 10:5:10，所以 8001 大约是 8002 的两倍
	ratio := float64(counts[testInstances[0].Addr]) / float64(counts[testInstances[1].Addr])
	assert.InDelta(t, 2.0, ratio, 0.5)
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	inst, err := b.Pick([]registry.ServiceInstance{{Addr: "ws://a"}, {Addr: "ws://b"}})
	require.NoError(t, err)
	assert.NotEmpty(t, inst.Addr)
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer("client-123")

	// 同一个 key 总是落在同一个实例上
	inst1, err := b.Pick(testInstances)
	require.NoError(t, err)
	inst2, err := b.Pick(testInstances)
	require.NoError(t, err)
	assert.Equal(t, inst1.Addr, inst2.Addr)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, err := b.PickKey(fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		seen[inst.Addr] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)
}

func TestConsistentHashStableUnderReorder(t *testing.T) {
	b := NewConsistentHashBalancer("client-123")
	first, err := b.Pick(testInstances)
	require.NoError(t, err)

	reordered := []registry.ServiceInstance{testInstances[2], testInstances[0], testInstances[1]}
	second, err := b.Pick(reordered)
	require.NoError(t, err)
	assert.Equal(t, first.Addr, second.Addr)
}

func TestConsistentHashRebuildsOnChange(t *testing.T) {
	b := NewConsistentHashBalancer("client-123")
	_, err := b.Pick(testInstances)
	require.NoError(t, err)

	only := []registry.ServiceInstance{{Addr: "ws://127.0.0.1:9000/ws"}}
	inst, err := b.Pick(only)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9000/ws", inst.Addr)
}

func TestConsistentHashAdd(t *testing.T) {
	b := NewConsistentHashBalancer("")
	_, err := b.PickKey("x")
	assert.Error(t, err)

	for i := range testInstances {
		b.Add(&testInstances[i])
	}
	inst, err := b.PickKey("x")
	require.NoError(t, err)
	assert.NotEmpty(t, inst.Addr)
}

func TestByName(t *testing.T) {
	for _, name := range []string{RoundRobin, WeightedRandom, ConsistentHash} {
		b, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, b.Name())
	}
	b, err := ByName("")
	require.NoError(t, err)
	assert.Equal(t, RoundRobin, b.Name())

	_, err = ByName("least_conn")
	assert.Error(t, err)
}
