// Package docs 接口文档 (swagger 2.0)，注释见 internal/controller
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/health": {
            "get": {
                "tags": ["system"],
                "summary": "健康检查",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        },
        "/api/runs": {
            "get": {
                "tags": ["runs"],
                "summary": "运行记录列表",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "description": "页码", "name": "page", "in": "query"},
                    {"type": "integer", "description": "每页数量 (上限 100)", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "503": {"description": "未配置数据库", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            },
            "post": {
                "tags": ["runs"],
                "summary": "异步触发一次完整运行",
                "produces": ["application/json"],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"type": "object", "properties": {"run_id": {"type": "string"}}}},
                    "409": {"description": "已有运行中的任务", "schema": {"$ref": "#/definitions/errorResponse"}},
                    "429": {"description": "冷却期内", "schema": {"$ref": "#/definitions/errorResponse"}},
                    "503": {"description": "服务关闭中", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            }
        },
        "/api/runs/latest": {
            "get": {
                "tags": ["runs"],
                "summary": "最近一次运行 (内存)",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "暂无运行记录", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            }
        },
        "/api/runs/{run_id}": {
            "get": {
                "tags": ["runs"],
                "summary": "单次运行记录，产物已上传时附带限时下载链接",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "运行 ID", "name": "run_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/runDetail"}},
                    "404": {"description": "运行记录不存在", "schema": {"$ref": "#/definitions/errorResponse"}},
                    "503": {"description": "未配置数据库", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            }
        },
        "/api/runs/{run_id}/products": {
            "get": {
                "tags": ["products"],
                "summary": "某次运行写入数据库的商品",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "运行 ID", "name": "run_id", "in": "path", "required": true},
                    {"type": "integer", "description": "页码", "name": "page", "in": "query"},
                    {"type": "integer", "description": "每页数量 (上限 100)", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "503": {"description": "未配置数据库", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            }
        },
        "/api/runs/{run_id}/products/{nm_id}": {
            "get": {
                "tags": ["products"],
                "summary": "某次运行中的单个商品",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "运行 ID", "name": "run_id", "in": "path", "required": true},
                    {"type": "integer", "description": "商品编号", "name": "nm_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "无效的商品编号", "schema": {"$ref": "#/definitions/errorResponse"}},
                    "404": {"description": "商品不存在", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            }
        },
        "/api/mirrors": {
            "get": {
                "tags": ["system"],
                "summary": "镜像缓存快照与请求统计",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        }
    },
    "definitions": {
        "errorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        },
        "runDetail": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "trigger": {"type": "string"},
                "query": {"type": "string"},
                "status": {"type": "string"},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"},
                "attempted": {"type": "integer"},
                "succeeded": {"type": "integer"},
                "export_format": {"type": "string"},
                "artifact": {"type": "string"},
                "artifact_key": {"type": "string"},
                "download_url": {"type": "string"},
                "error_msg": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo 文档元信息，运行时可改 Host
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "wb-catalog API",
	Description:      "Wildberries 商品目录采集：触发运行、查询运行记录与商品",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
