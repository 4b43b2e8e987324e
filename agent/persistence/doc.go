// Copyright (c) AgentLens Authors.
// Licensed under the MIT License.

/*
包 persistence 为能力注册、匿名身份与委托日志提供持久化后端。

# 概述

discovery、identity 与 delegation 包只依赖各自的存储接口，
并自带进程内实现。本包提供基于 GORM 的关系型数据库实现
（PostgreSQL / MySQL / SQLite），以及基于 MongoDB 的委托日志实现，
使同一套业务逻辑可以从单机测试平滑切换到多实例部署。

# 核心类型

  - CapabilityStore: 实现 discovery.CapabilityStore 与 discovery.ConfigStore，
    Mutate 在事务内执行读-改-写。
  - IdentityStore: 实现 identity.Store，保留被轮换的旧映射以支持宽限期反查。
  - LogStore: 实现 delegation.LogStore，仅追加写入。
  - MongoLogStore: 基于 MongoDB 集合的 delegation.LogStore。

# 初始化

InitDatabase 通过 AutoMigrate 创建全部表结构，适用于 SQLite 与测试环境；
生产环境建议使用 internal/migration 中的版本化迁移。
*/
package persistence
