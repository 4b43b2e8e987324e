// Copyright (c) AgentLens Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentLens 服务端程序入口。

# 概述

cmd/agentlens 组装能力注册表、匿名身份、发现服务与委托服务，
对外提供 HTTP API，并附带数据库迁移、健康检查和版本查询子命令。

# 核心类型

  - Server      — 主服务器，管理后端连接、领域服务与 HTTP/Metrics 双端口
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、migrate、version、health
  - 后端选择：委托传输 local/redis，存储 memory/database，日志另可选 mongo
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、按 IP 限流、JWT 或请求头身份、按租户限流
  - 配置重载：轮询配置文件，日志级别即时生效
  - 优雅关闭：停止 HTTP 与 Metrics → 停止后台协程 → 关闭传输与后端 → 刷新遥测
*/
package main
