// Copyright (c) AgentLens Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的缓存管理能力，支持连接池、健康检查
与 JSON 序列化。

# 概述

本包封装 go-redis 客户端，为上层业务提供统一的缓存读写接口。
Manager 负责连接生命周期管理，包括初始化、健康检查与优雅关闭。
同一连接通过 Client 暴露给 Redis 委托传输与分布式限流器复用。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 Get/Set/Delete 等基础操作，以及 GetJSON/SetJSON 便捷序列化方法。
  - Config：缓存配置，包含地址、密码、连接池大小、默认 TTL
    与健康检查间隔等参数。

# 主要能力

  - 键值读写：支持字符串与 JSON 两种模式的缓存存取。
  - 连接池管理：通过 PoolSize 与 MinIdleConns 控制连接复用。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 优雅关闭：Close 方法安全释放底层 Redis 连接。
  - 错误语义：提供 ErrCacheMiss、ErrClosed 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
