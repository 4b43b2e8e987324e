// Copyright (c) AgentLens Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/StartTLS/Run/Shutdown/WaitForShutdown 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小、
    优雅关闭超时以及可选的 TLS 证书路径。

# 主要能力

  - 非阻塞启动：Start/StartTLS 在后台 goroutine 中运行服务。
  - TLS：StartTLS 通过 tlsutil.ServerTLSConfig 加载证书，强制 TLS 1.2+。
  - 优雅关闭：Shutdown 在配置的超时内排空请求。
  - 异常退出：Serve 的非关闭错误会唤醒 WaitForShutdown 并触发关闭。
  - Addr 在监听后返回实际地址，便于 ":0" 随机端口测试。
*/
package server
