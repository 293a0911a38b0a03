package scaffolding

// SiteTemplate is one file of a new site. Body is a text/template with
// [[ ]] delimiters, so that pongo2 markup passes through untouched.
type SiteTemplate struct {
	Path    string
	Body    string
	Minimal bool
}

// TemplateContext is the data every SiteTemplate is executed with.
type TemplateContext struct {
	Title   string
	BaseURL string
	Date    string
}

// siteTemplates returns the files of a new site. Minimal sites get only
// the files marked Minimal.
func siteTemplates() []SiteTemplate {
	return []SiteTemplate{
		{Path: ".slate.yml", Minimal: true, Body: `site:
  title: "[[ .Title ]]"
  base_url: "[[ .BaseURL ]]"

output:
  dir: public
  clean: true

build:
  default_template: default.html

markdown:
  highlight_style: github

finish:
  minify_html: true
  minify_css: true
  compress: true
  encodings: [br, gzip]

serve:
  port: 8000
  live_reload: true
`},
		{Path: "templates/default.html", Minimal: true, Body: `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{% if page.title %}{{ page.title }} | {% endif %}{{ site.title }}</title>
  <link rel="stylesheet" href="@/styles/main.css" embed>
  <style>{{ site.highlight_css }}</style>
</head>
<body>
  {% include "partials/nav.html" %}
  <main>
    {% block content %}{{ page.content }}{% endblock %}
  </main>
</body>
</html>
`},
		{Path: "templates/partials/nav.html", Minimal: true, Body: `<nav>
  <a href="@/">{{ site.title }}</a>
  <a href="@/posts/">Posts</a>
  <a href="@/about/">About</a>
</nav>
`},
		{Path: "templates/list.html", Body: `{% extends "default.html" %}
{% block content %}
<h1>{{ page.title }}</h1>
{{ page.content }}
<ul class="posts">
{% for p in pages %}
  <li><a href="{{ p.url }}">{{ p.title }}</a> <time>{{ p.date|date:"2006-01-02" }}</time>{% if p.summary %}<p>{{ p.summary }}</p>{% endif %}</li>
{% endfor %}
</ul>
{% endblock %}
`},
		{Path: "content/index.md", Minimal: true, Body: `---
title: Home
---
# Welcome to [[ .Title ]]

Edit ` + "`content/index.md`" + ` and run ` + "`slate serve`" + ` to see it change.
`},
		{Path: "content/about.html", Body: `---
title: About
summary: What this site is about.
---
<p>[[ .Title ]] is maintained by {{ data.site.author }}.</p>
`},
		{Path: "content/posts/index.md", Body: `---
title: Posts
list: posts
template: list.html
---
Everything written so far.
`},
		{Path: "content/posts/[[ .Date ]]-hello-world.md", Body: `---
title: Hello, world
summary: The first post.
---
Code blocks are highlighted:

` + "```go" + `
fmt.Println("hello")
` + "```" + `
`},
		{Path: "styles/main.css", Minimal: true, Body: `@import "_vars.css";

body {
  margin: 0 auto;
  max-width: 42rem;
  padding: 1rem;
  font-family: system-ui, sans-serif;
  color: var(--ink);
}

nav {
  display: flex;
  gap: 1rem;
  user-select: none;
}
`},
		{Path: "styles/_vars.css", Minimal: true, Body: `:root {
  --ink: #222;
}
`},
		{Path: "data/site.yaml", Body: `author: Someone
`},
		{Path: "static/robots.txt", Minimal: true, Body: `User-agent: *
Allow: /
`},
	}
}
