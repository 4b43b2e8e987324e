// Copyright (c) AgentLens Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、发现、委托与数据库连接池四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标。指标经
promauto.With 注册到 WithRegisterer 指定的注册表，缺省为
prometheus.DefaultRegisterer；所有指标按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 发现指标：查询总数、查询耗时与返回候选数量，按 scope 分组。
  - 委托指标：按 task_type/status 统计的委托结果、往返耗时、
    在途委托数 Gauge，以及按方向统计的限流拒绝次数。
    Collector 同时实现 discovery.Observer 与 delegation.Observer。
  - 数据库指标：活跃/空闲连接数 Gauge，按 database 分组。
*/
package metrics
