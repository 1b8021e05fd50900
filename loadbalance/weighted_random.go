package loadbalance

import (
	"math/rand"

	"mini-wsrpc/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional to
// its weight. Instances without a positive weight count as weight 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, errNoInstances
	}

	// 计算总权重
	totalWeight := 0
	for _, v := range instances {
		totalWeight += weight(v)
	}

	// 生成一个随机数，范围是0到总权重
	r := rand.Intn(totalWeight)
	for i := range instances {
		r -= weight(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return WeightedRandom
}

func weight(i registry.ServiceInstance) int {
	if i.Weight <= 0 {
		return 1
	}
	return i.Weight
}
