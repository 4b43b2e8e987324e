// Copyright (c) AgentLens Authors.
// Licensed under the MIT License.

/*
包 observability 为发现与委托流程提供可观测性能力。

# 概述

本包把发现查询、限流拒绝和委托结果转化为可量化的指标。
它实现 discovery.Observer 与 delegation.Observer 两个接口，
既可以通过 OpenTelemetry 导出，也可以在进程内聚合统计。

# 核心类型

  - Metrics: 基于 OpenTelemetry 的指标与追踪，记录查询次数、结果数量、
    委托结果分布、耗时直方图以及在途委托数量。
  - Collector: 进程内统计，按任务类型聚合委托次数、成功率与延迟分位数
    （P50/P95/P99），供 API 直接查询。
  - Multi: 将多个 Observer 组合为一个，便于同时接入 OTel 与 Prometheus。

# 使用方式

	m, _ := observability.NewMetrics()
	c := observability.NewCollector(1000)
	obs := observability.Multi{m, c}
	// 作为 discovery.WithObserver(obs) 与 delegation.Dependencies.Observer 传入
*/
package observability
