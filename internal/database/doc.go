// Copyright (c) AgentLens Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库连接管理，支持按驱动打开连接、
连接池调优、健康检查、指标上报与事务重试。

# 概述

Open 根据 config.DatabaseConfig 选择 postgres、mysql 或纯 Go 的
sqlite 方言，并交给 PoolManager 统一管理连接生命周期。后台健康
检查定时探活，通过 StatsRecorder 上报打开与空闲连接数。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，包含最大空闲连接数、最大打开连接数、
    连接最大生命周期、空闲超时与健康检查间隔。
  - StatsRecorder：健康检查指标接收方，由 Prometheus 采集器实现。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 事务重试：TransactionWithRetry 对死锁、序列化失败、sqlite 忙等
    瞬时错误指数退避重试，能力存储的读改写依赖它。
*/
package database
