// Copyright (c) AgentLens Authors.
// Licensed under the MIT License.

// Package config 提供 AgentLens 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → AGENTLENS_ 前缀环境变量 的顺序加载，
// 覆盖服务端口、JWT 认证、Redis、数据库、MongoDB、发现与委托协议、
// 日志和遥测等部分。Validate 汇总所有错误一次性返回。
package config
